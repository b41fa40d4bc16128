// Package sequence issues human-readable record numbers such as PT-000042.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/db"
)

// Generator returns the next value of the named counter. Values are strictly
// increasing per name.
type Generator interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Format renders n with prefix, zero-padded to width digits.
func Format(prefix string, width int, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

// Numberer formats values of one counter as record numbers.
type Numberer struct {
	gen    Generator
	name   string
	prefix string
	width  int
}

// NewNumberer returns a Numberer drawing from counter name of gen.
func NewNumberer(gen Generator, name, prefix string, width int) *Numberer {
	return &Numberer{gen: gen, name: name, prefix: prefix, width: width}
}

// Next returns the next formatted record number.
func (n *Numberer) Next(ctx context.Context) (string, error) {
	v, err := n.gen.Next(ctx, n.name)
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", n.name, err)
	}
	return Format(n.prefix, n.width, v), nil
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

// Redis counts with INCR on one key per counter.
type Redis struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedis returns a generator storing counters under keyPrefix.
func NewRedis(client redis.Cmdable, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

// OpenRedis connects to redisURL and verifies the connection.
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (r *Redis) Next(ctx context.Context, name string) (int64, error) {
	n, err := r.client.Incr(ctx, r.keyPrefix+name).Result()
	if err != nil {
		return 0, db.Classify("redis incr", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Postgres
// ---------------------------------------------------------------------------

// Postgres draws from database sequences named after the counter.
type Postgres struct {
	conn db.Conn
}

// NewPostgres returns a generator using nextval on conn.
func NewPostgres(conn db.Conn) *Postgres {
	return &Postgres{conn: conn}
}

func (p *Postgres) Next(ctx context.Context, name string) (int64, error) {
	if !criteria.ValidIdentifier(name) {
		return 0, fmt.Errorf("invalid sequence name %q", name)
	}
	rows, err := db.Use(ctx, p.conn).Query(ctx, "SELECT nextval($1::regclass) AS value", name)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, fmt.Errorf("nextval(%s) returned %d rows", name, len(rows))
	}
	v, _ := rows[0].Get("value")
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	}
	return 0, fmt.Errorf("nextval(%s) returned %T", name, v)
}
