package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"aagateway/internal/application"
	"aagateway/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	journalCacheVersionKey = "aagateway:submissions:version"
	journalCacheKeyPrefix  = "aagateway:submissions:v"
	defaultJournalCacheTTL = time.Minute
)

// CachedJournal caches submission queries in Redis. Every write bumps a
// version counter, so stale entries are never read again and simply expire.
type CachedJournal struct {
	application.Journal
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedJournal(base application.Journal, client *redis.Client, ttl time.Duration) (*CachedJournal, error) {
	if base == nil {
		return nil, errors.New("base journal is required")
	}
	if ttl <= 0 {
		ttl = defaultJournalCacheTTL
	}
	return &CachedJournal{Journal: base, cache: client, ttl: ttl}, nil
}

func (j *CachedJournal) RecordSubmission(ctx context.Context, submission domain.Submission) error {
	if err := j.Journal.RecordSubmission(ctx, submission); err != nil {
		return err
	}
	j.invalidate(ctx)
	return nil
}

func (j *CachedJournal) CompleteSubmission(ctx context.Context, id string, outcome domain.SubmissionOutcome) error {
	if err := j.Journal.CompleteSubmission(ctx, id, outcome); err != nil {
		return err
	}
	j.invalidate(ctx)
	return nil
}

func (j *CachedJournal) QuerySubmissions(ctx context.Context, filter application.SubmissionQueryFilter) ([]domain.Submission, error) {
	if j.cache == nil {
		return j.Journal.QuerySubmissions(ctx, filter)
	}
	version, ok := j.version(ctx)
	if !ok {
		return j.Journal.QuerySubmissions(ctx, filter)
	}
	key := journalCacheKey(version, filter)
	if cached, err := j.cache.Get(ctx, key).Result(); err == nil {
		var submissions []domain.Submission
		if err := json.Unmarshal([]byte(cached), &submissions); err == nil {
			return submissions, nil
		}
	}

	submissions, err := j.Journal.QuerySubmissions(ctx, filter)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(submissions)
	if err != nil {
		return submissions, nil
	}
	_ = j.cache.Set(ctx, key, payload, j.ttl).Err()
	return submissions, nil
}

func (j *CachedJournal) version(ctx context.Context) (string, bool) {
	version, err := j.cache.Get(ctx, journalCacheVersionKey).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (j *CachedJournal) invalidate(ctx context.Context) {
	if j.cache == nil {
		return
	}
	_ = j.cache.Incr(context.WithoutCancel(ctx), journalCacheVersionKey).Err()
}

func journalCacheKey(version string, filter application.SubmissionQueryFilter) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(journalCacheKeyPrefix)
	b.WriteString(version)
	b.WriteString(":op=")
	b.WriteString(orAny(string(filter.Operation)))
	b.WriteString(":sender=")
	b.WriteString(orAny(strings.ToLower(filter.Sender)))
	b.WriteString(":subject=")
	b.WriteString(orAny(strings.ToLower(filter.Subject)))
	b.WriteString(":status=")
	b.WriteString(orAny(string(filter.Status)))
	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(normalizeLimit(filter.Limit)))
	return b.String()
}

func orAny(value string) string {
	if value == "" {
		return "any"
	}
	return value
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
