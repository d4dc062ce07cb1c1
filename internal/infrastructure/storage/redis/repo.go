package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"canlidoviz/internal/application/port"
	"canlidoviz/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Repo mirrors the latest quote per symbol into one hash and publishes every change.
type Repo struct {
	rdb       *redis.Client
	ttl       time.Duration
	keyLatest string // prefix + ":latest"
	channel   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, channel string) *Repo {
	if strings.TrimSpace(prefix) == "" {
		prefix = "canlidoviz"
	}
	if strings.TrimSpace(channel) == "" {
		channel = prefix + ":quotes"
	}
	return &Repo{
		rdb:       rdb,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
		channel:   channel,
	}
}

func (r *Repo) KeyLatest() string { return r.keyLatest }

func (r *Repo) Channel() string { return r.channel }

func (r *Repo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}

	// Hash: field = symbol -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, q.Symbol, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.Publish(ctx, r.channel, string(b))
	_, err = pipe.Exec(ctx)
	return err
}

// GetQuote reports ok=false when the symbol has not been mirrored yet.
func (r *Repo) GetQuote(ctx context.Context, symbol string) (domain.Quote, bool, error) {
	raw, err := r.rdb.HGet(ctx, r.keyLatest, symbol).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Quote{}, false, nil
	}
	if err != nil {
		return domain.Quote{}, false, err
	}
	var q domain.Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return domain.Quote{}, false, err
	}
	return q, true, nil
}

// Close leaves the client open; the container owns it.
func (r *Repo) Close() error { return nil }

var _ port.QuoteRepository = (*Repo)(nil)
