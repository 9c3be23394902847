// Package redispresence mantiene el estado de conexión por usuario. La fuente
// de verdad del "online" es una clave Redis con TTL (si el cliente deja de
// latir, expira sola); el documento /presence/{userId} del store es un espejo
// para los consumidores que ya escuchan el árbol realtime.
package redispresence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"nido/internal/ports/store"
	"nido/internal/schema"
)

const keyPrefix = "presence:"

const (
	StateOnline  = "online"
	StateOffline = "offline"
)

// client es el subconjunto de go-redis que usa el tracker.
type client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

type Tracker struct {
	rdb   client
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

type Options struct {
	Addr     string
	Password string
	DB       int

	// TTL de la clave de presencia; un heartbeat la renueva. Default 60s.
	TTL time.Duration
}

func New(opts Options, st store.Store) (*Tracker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return newTracker(rdb, st, opts.TTL), nil
}

func newTracker(rdb client, st store.Store, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Tracker{rdb: rdb, store: st, ttl: ttl, now: time.Now}
}

// Heartbeat marca al usuario online y renueva el TTL. platform y version son
// opcionales y solo viajan al espejo del store.
func (t *Tracker) Heartbeat(ctx context.Context, userID, platform, version string) error {
	if err := t.rdb.Set(ctx, keyPrefix+userID, StateOnline, t.ttl).Err(); err != nil {
		return err
	}
	return t.mirror(ctx, userID, StateOnline, platform, version)
}

// SetOffline baja al usuario explícitamente (logout limpio). La expiración
// del TTL cubre las desconexiones abruptas; ahí el espejo queda desactualizado
// hasta el próximo heartbeat de ese usuario.
func (t *Tracker) SetOffline(ctx context.Context, userID string) error {
	if err := t.rdb.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return err
	}
	return t.mirror(ctx, userID, StateOffline, "", "")
}

func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.rdb.Exists(ctx, keyPrefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *Tracker) Close() error { return t.rdb.Close() }

func (t *Tracker) mirror(ctx context.Context, userID, state, platform, version string) error {
	doc := map[string]any{
		"state":       state,
		"lastChanged": t.now().UnixMilli(),
	}
	if platform != "" {
		doc["platform"] = platform
	}
	if version != "" {
		doc["currentVersion"] = version
	}
	return t.store.Set(ctx, schema.PresencePath(userID), doc)
}
