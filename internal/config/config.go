package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"aagateway/internal/units"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	HTTPAddr   string
	HTTPPrefix string

	// RateLimitRPS is the per-client request rate; zero disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	PrivateKey          string
	PimlicoAPIKey       string
	SponsorshipPolicyID string
	AccountSalt         *big.Int

	PointsNetwork string
	TokenNetwork  string
	Networks      map[string]Network

	RedisAddr      string
	IdempotencyTTL time.Duration

	JournalDriver string
	JournalDSN    string

	KafkaBrokers     []string
	KafkaTopicPrefix string

	OtelEndpoint  string
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

// Points returns the network the points contract lives on.
func (c Config) Points() Network {
	return c.Networks[c.PointsNetwork]
}

// Tokens returns the network the token factory lives on.
func (c Config) Tokens() Network {
	return c.Networks[c.TokenNetwork]
}

// NetworkNames lists the networks in use, points first, without duplicates.
func (c Config) NetworkNames() []string {
	if c.PointsNetwork == c.TokenNetwork {
		return []string{c.PointsNetwork}
	}
	return []string{c.PointsNetwork, c.TokenNetwork}
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	privateKey, ok := source.Lookup("PRIVATE_KEY")
	if !ok || strings.TrimSpace(privateKey) == "" {
		return Config{}, errors.New("PRIVATE_KEY is required")
	}
	apiKey, ok := source.Lookup("PIMLICO_API_KEY")
	if !ok || strings.TrimSpace(apiKey) == "" {
		return Config{}, errors.New("PIMLICO_API_KEY is required")
	}
	policyID, _ := source.Lookup("PIMLICO_SPONSORSHIP_POLICY_ID")

	accountSalt, err := parseBigEnv(source, "ACCOUNT_SALT", new(big.Int))
	if err != nil {
		return Config{}, err
	}

	pointsNetwork := lookupDefault(source, "POINTS_NETWORK", NetworkBaseSepolia)
	tokenNetwork := lookupDefault(source, "TOKEN_NETWORK", NetworkPolygonAmoy)

	networks := make(map[string]Network)
	for _, name := range uniqueNames(pointsNetwork, tokenNetwork) {
		network, err := loadNetwork(source, name, strings.TrimSpace(apiKey))
		if err != nil {
			return Config{}, err
		}
		networks[name] = network
	}

	if networks[tokenNetwork].TokenFactory == (common.Address{}) {
		return Config{}, errors.New("FACTORY_CONTRACT_ADDRESS is required")
	}
	if networks[pointsNetwork].PointsContract == (common.Address{}) {
		return Config{}, errors.New("POINTS_CONTRACT_ADDRESS is required")
	}

	idempotencyTTL, err := parseDurationEnv(source, "IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}

	journalDriver := strings.ToLower(lookupDefault(source, "JOURNAL_DRIVER", "sqlite"))
	journalDSN, _ := source.Lookup("JOURNAL_DSN")
	journalDSN = strings.TrimSpace(journalDSN)
	switch journalDriver {
	case "sqlite":
		if journalDSN == "" {
			journalDSN = "data/gateway.db"
		}
	case "mysql":
		if journalDSN == "" {
			return Config{}, errors.New("JOURNAL_DSN is required for the mysql journal")
		}
	case "none":
	default:
		return Config{}, fmt.Errorf("invalid JOURNAL_DRIVER: %s", journalDriver)
	}

	redisAddr, _ := source.Lookup("REDIS_ADDR")
	kafkaBrokers := parseList(source, "KAFKA_BROKERS")
	otelEndpoint, _ := source.Lookup("OTEL_EXPORTER_OTLP_ENDPOINT")

	logMaxSize, err := parseUintEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseUintEnv(source, "LOG_MAX_BACKUPS", 3)
	if err != nil {
		return Config{}, err
	}
	logFile, _ := source.Lookup("LOG_FILE")

	rateLimitRPS, err := parseFloatEnv(source, "RATE_LIMIT_RPS", 0)
	if err != nil {
		return Config{}, err
	}
	rateLimitBurst, err := parseUintEnv(source, "RATE_LIMIT_BURST", 0)
	if err != nil {
		return Config{}, err
	}
	if rateLimitRPS > 0 && rateLimitBurst == 0 {
		rateLimitBurst = uint64(rateLimitRPS) * 2
		if rateLimitBurst == 0 {
			rateLimitBurst = 1
		}
	}

	return Config{
		HTTPAddr:            lookupDefault(source, "HTTP_ADDR", ":8080"),
		HTTPPrefix:          strings.TrimRight(lookupDefault(source, "HTTP_PREFIX", ""), "/"),
		RateLimitRPS:        rateLimitRPS,
		RateLimitBurst:      int(rateLimitBurst),
		PrivateKey:          strings.TrimSpace(privateKey),
		PimlicoAPIKey:       strings.TrimSpace(apiKey),
		SponsorshipPolicyID: strings.TrimSpace(policyID),
		AccountSalt:         accountSalt,
		PointsNetwork:       pointsNetwork,
		TokenNetwork:        tokenNetwork,
		Networks:            networks,
		RedisAddr:           strings.TrimSpace(redisAddr),
		IdempotencyTTL:      idempotencyTTL,
		JournalDriver:       journalDriver,
		JournalDSN:          journalDSN,
		KafkaBrokers:        kafkaBrokers,
		KafkaTopicPrefix:    lookupDefault(source, "KAFKA_TOPIC_PREFIX", "aagateway-events"),
		OtelEndpoint:        strings.TrimSpace(otelEndpoint),
		LogLevel:            lookupDefault(source, "LOG_LEVEL", "info"),
		LogFormat:           lookupDefault(source, "LOG_FORMAT", "text"),
		LogFile:             strings.TrimSpace(logFile),
		LogMaxSizeMB:        int(logMaxSize),
		LogMaxBackups:       int(logMaxBackups),
	}, nil
}

func lookupDefault(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	return strings.TrimSpace(raw)
}

func uniqueNames(names ...string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseFloatEnv(source EnvSource, key string, defaultValue float64) (float64, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", key)
	}
	return value, nil
}

func parseBigEnv(source EnvSource, key string, defaultValue *big.Int) (*big.Int, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 0)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return value, nil
}

func parseEtherEnv(source EnvSource, key string, defaultValue *big.Int) (*big.Int, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := units.ParseEther(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseAddressEnv(source EnvSource, key string, defaultValue common.Address) (common.Address, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s: %q is not a 20-byte hex address", key, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseList(source EnvSource, key string) []string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	return values
}

// LoadFromEnv loads an optional dotenv file, then the process environment.
func LoadFromEnv() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	return Load(FromEnviron())
}
