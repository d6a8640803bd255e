package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "presence:user:"

// Config holds the redis connection settings for the presence store.
type Config struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Prefix   string `env:"PRESENCE_PREFIX" envDefault:"presence:user:"`
}

// Record mirrors an account's display and online state. It is not authoritative.
type Record struct {
	UserID       string
	DisplayName  string
	PhotoURL     *string
	Phone        *string
	Online       bool
	LastSeen     time.Time
	CreatedAt    time.Time
	UserType     string
	AuthProvider string
}

// Mirror writes presence records into redis hashes keyed by user id.
type Mirror struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// Dial creates the redis client and pings it. The client is returned even when
// the ping fails so callers can keep mirroring best-effort once redis is back.
func Dial(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return client, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewMirror creates a Mirror. An empty prefix selects the default.
func NewMirror(client *redis.Client, prefix string) *Mirror {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Mirror{client: client, prefix: prefix, now: time.Now}
}

func (m *Mirror) key(userID string) string {
	return m.prefix + userID
}

// Upsert creates the record when absent and refreshes it otherwise. Display
// fields and created_at are only written on first sight; online, last_seen,
// user_type and auth_provider are always refreshed. Both happen in one MULTI.
func (m *Mirror) Upsert(ctx context.Context, rec Record) error {
	if rec.UserID == "" {
		return fmt.Errorf("presence: missing user id")
	}
	now := m.now().UTC()
	lastSeen := rec.LastSeen
	if lastSeen.IsZero() {
		lastSeen = now
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	key := m.key(rec.UserID)
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "display_name", rec.DisplayName)
		pipe.HSetNX(ctx, key, "photo_url", deref(rec.PhotoURL))
		pipe.HSetNX(ctx, key, "phone", deref(rec.Phone))
		pipe.HSetNX(ctx, key, "created_at", createdAt.Format(time.RFC3339Nano))
		pipe.HSet(ctx, key,
			"online", strconv.FormatBool(rec.Online),
			"last_seen", lastSeen.UTC().Format(time.RFC3339Nano),
			"user_type", rec.UserType,
			"auth_provider", rec.AuthProvider,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence: upsert %s: %w", rec.UserID, err)
	}
	return nil
}

// Get reads a record once. It returns nil, nil when no record exists.
func (m *Mirror) Get(ctx context.Context, userID string) (*Record, error) {
	vals, err := m.client.HGetAll(ctx, m.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: get %s: %w", userID, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	rec := &Record{
		UserID:       userID,
		DisplayName:  vals["display_name"],
		PhotoURL:     ref(vals["photo_url"]),
		Phone:        ref(vals["phone"]),
		UserType:     vals["user_type"],
		AuthProvider: vals["auth_provider"],
	}
	rec.Online, _ = strconv.ParseBool(vals["online"])
	if t, err := time.Parse(time.RFC3339Nano, vals["last_seen"]); err == nil {
		rec.LastSeen = t
	}
	if t, err := time.Parse(time.RFC3339Nano, vals["created_at"]); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
