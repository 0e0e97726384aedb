package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aagateway/internal/application"
	"aagateway/internal/config"
	"aagateway/internal/infrastructure/chain"
	"aagateway/internal/infrastructure/kafka"
	"aagateway/internal/infrastructure/logging"
	"aagateway/internal/infrastructure/mysql"
	"aagateway/internal/infrastructure/redisstore"
	"aagateway/internal/infrastructure/relay"
	"aagateway/internal/infrastructure/sqlite"
	"aagateway/internal/infrastructure/telemetry"
	"aagateway/internal/interfaces/httpapi"
	"aagateway/internal/smartaccount"

	"github.com/redis/go-redis/v9"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

type journal interface {
	application.Journal
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fatal("config error", err)
	}

	logFile, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Service:    "aagateway",
	})
	if err != nil {
		fatal("logging error", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "aagateway",
		ServiceVersion: version,
		Endpoint:       cfg.OtelEndpoint,
	})
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				slog.Warn("tracing shutdown error", "err", err)
			}
		}()
	}

	var checks []httpapi.Check

	clients := make(map[string]*application.TxClient, len(cfg.Networks))
	for _, name := range cfg.NetworkNames() {
		network := cfg.Networks[name]
		chainClient, err := chain.Dial(ctx, chain.Config{URL: network.RPCURL, PollInterval: network.PollInterval})
		if err != nil {
			fatal("rpc error", err, "network", name)
		}
		defer chainClient.Close()

		relayClient, err := relay.NewClient(relay.Config{
			URL:                 network.BundlerURL,
			EntryPoint:          network.EntryPoint,
			SponsorshipPolicyID: cfg.SponsorshipPolicyID,
		})
		if err != nil {
			fatal("bundler error", err, "network", name)
		}

		account, err := smartaccount.New(smartaccount.Config{
			PrivateKey: cfg.PrivateKey,
			Factory:    network.AccountFactory,
			EntryPoint: network.EntryPoint,
			Salt:       cfg.AccountSalt,
		})
		if err != nil {
			fatal("account error", err)
		}

		client, err := application.NewTxClient(chainClient, relayClient, account, network)
		if err != nil {
			fatal("tx client error", err, "network", name)
		}
		clients[name] = client

		if address, err := client.AccountAddress(ctx); err != nil {
			slog.Warn("smart account address lookup failed", "network", name, "err", err)
		} else {
			slog.Info("smart account ready", "network", name, "chain_id", network.ChainID, "owner", account.Owner().Hex(), "account", address.Hex())
		}

		checks = append(checks,
			httpapi.Check{Name: name + " rpc", Probe: func(ctx context.Context) error {
				_, err := chainClient.LatestBlockNumber(ctx)
				return err
			}},
			httpapi.Check{Name: name + " bundler", Probe: relayClient.Ping},
		)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = redisstore.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Warn("redis disabled", "addr", cfg.RedisAddr, "err", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			checks = append(checks, httpapi.Check{Name: "redis", Probe: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}})
		}
	}

	var submissions application.Journal
	if store, err := openJournal(cfg); err != nil {
		fatal("journal error", err, "driver", cfg.JournalDriver)
	} else if store != nil {
		defer store.Close()
		submissions = store
		checks = append(checks, httpapi.Check{Name: "journal", Probe: store.Ping})
		if redisClient != nil {
			cached, err := redisstore.NewCachedJournal(store, redisClient, time.Minute)
			if err != nil {
				fatal("journal cache error", err)
			}
			submissions = cached
		}
	}

	var events application.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:     cfg.KafkaBrokers,
			TopicPrefix: cfg.KafkaTopicPrefix,
		})
		if err != nil {
			fatal("kafka error", err)
		}
		defer producer.Close()
		events = producer
	}

	metrics := httpapi.NewMetrics()
	gateway, err := application.NewGateway(clients[cfg.PointsNetwork], clients[cfg.TokenNetwork], application.GatewayOptions{
		Journal:  submissions,
		Events:   events,
		Observer: metrics,
	})
	if err != nil {
		fatal("gateway error", err)
	}

	opts := httpapi.Options{
		Prefix: cfg.HTTPPrefix,
		Checks: checks,
		BuildInfo: httpapi.BuildInfo{
			Version:   version,
			Commit:    commit,
			BuildTime: buildTime,
		},
	}
	if redisClient != nil {
		idempotency, err := redisstore.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
		if err != nil {
			fatal("idempotency store error", err)
		}
		opts.Idempotency = idempotency
	}
	if cfg.RateLimitRPS > 0 {
		limiter := httpapi.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		go limiter.Run(ctx)
		opts.Limiter = limiter
	}

	httpServer, err := httpapi.NewServer(gateway, metrics, opts)
	if err != nil {
		fatal("http server error", err)
	}

	if logFile != nil {
		go rotateOnHangup(ctx, logFile)
	}

	slog.Info("gateway starting",
		"version", version,
		"points_network", cfg.PointsNetwork,
		"token_network", cfg.TokenNetwork,
		"journal", cfg.JournalDriver,
		"redis", redisClient != nil,
		"kafka", events != nil,
	)
	if err := httpServer.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("http server error", "err", err)
	}
	slog.Info("gateway stopped")
}

func openJournal(cfg config.Config) (journal, error) {
	switch cfg.JournalDriver {
	case "sqlite":
		return sqlite.NewRepository(cfg.JournalDSN)
	case "mysql":
		return mysql.NewRepository(cfg.JournalDSN)
	default:
		return nil, nil
	}
}

func rotateOnHangup(ctx context.Context, writer *logging.RotatingWriter) {
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hangup:
			if err := writer.Rotate(); err != nil {
				slog.Warn("log rotation failed", "err", err)
			}
		}
	}
}

func fatal(msg string, err error, args ...any) {
	slog.Error(msg, append([]any{"err", err}, args...)...)
	os.Exit(1)
}
