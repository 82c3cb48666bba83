// Package cache decorates a repository.UserRepository with a Redis
// read-through cache. Redis is never authoritative: every cache failure is
// logged and the call falls through to the wrapped repository.
//
// Each user has a generation counter under user:{id}:gen. Writes bump it
// before and after touching the store, and a miss only fills user:{id} when
// the generation it read before loading the row is still current. A reader
// that loaded a row older than a concurrent write therefore never caches it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/civitas/user-service/internal/domain"
	"github.com/civitas/user-service/internal/repository"
	"github.com/civitas/user-service/pkg/logger"
)

const (
	keyPrefix = "user:"
	genSuffix = ":gen"
)

var errStaleRead = errors.New("user changed while loading")

// Metrics counts cache lookups by result ("hit", "miss", "error").
type Metrics struct {
	lookups *prometheus.CounterVec
}

// NewMetrics registers the cache counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "user_cache_lookups_total",
			Help: "User cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.lookups)
	return m
}

func (m *Metrics) observe(result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
}

// UserRepository caches GetByID results under user:{id}.
type UserRepository struct {
	next    repository.UserRepository
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

// NewUserRepository wraps next. metrics may be nil.
func NewUserRepository(next repository.UserRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger, metrics *Metrics) *UserRepository {
	return &UserRepository{
		next:    next,
		client:  client,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

func key(id string) string {
	return keyPrefix + id
}

func genKey(id string) string {
	return keyPrefix + id + genSuffix
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	return r.next.Create(ctx, u)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := r.lookup(ctx, id); ok {
		return u, nil
	}

	gen, genOK := r.generation(ctx, id)
	u, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if genOK {
		r.store(ctx, u, gen)
	}
	return u, nil
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]domain.User, int, error) {
	return r.next.List(ctx, offset, limit)
}

func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	r.bump(ctx, u.ID)
	if err := r.next.Update(ctx, u); err != nil {
		return err
	}
	r.invalidate(ctx, u.ID)
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	r.bump(ctx, id)
	if err := r.next.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *UserRepository) lookup(ctx context.Context, id string) (*domain.User, bool) {
	data, err := r.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.metrics.observe("miss")
		} else {
			r.metrics.observe("error")
			r.warn(ctx, "redis get user", id, err)
		}
		return nil, false
	}

	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		r.metrics.observe("error")
		r.warn(ctx, "unmarshal cached user", id, err)
		return nil, false
	}
	r.metrics.observe("hit")
	return &u, true
}

// generation reads the current write generation of id. A missing counter
// is generation 0. ok is false when Redis could not be read, in which case
// the loaded row must not be cached.
func (r *UserRepository) generation(ctx context.Context, id string) (int64, bool) {
	gen, err := r.client.Get(ctx, genKey(id)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.warn(ctx, "redis get generation", id, err)
		return 0, false
	}
	return gen, true
}

// store caches u only if no write to it started since gen was read.
func (r *UserRepository) store(ctx context.Context, u *domain.User, gen int64) {
	data, err := json.Marshal(u)
	if err != nil {
		r.warn(ctx, "marshal user", u.ID, err)
		return
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey(u.ID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(u.ID), data, r.ttl)
			return nil
		})
		return err
	}, genKey(u.ID))

	switch {
	case err == nil, errors.Is(err, errStaleRead), errors.Is(err, redis.TxFailedErr):
	default:
		r.warn(ctx, "redis set user", u.ID, err)
	}
}

// bump advances the write generation of id. The counter outlives the cached
// entry so an in-flight miss cannot see it reset.
func (r *UserRepository) bump(ctx context.Context, id string) {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(id))
		pipe.Expire(ctx, genKey(id), 2*r.ttl)
		return nil
	})
	if err != nil {
		r.warn(ctx, "redis bump generation", id, err)
	}
}

// invalidate drops the entry after a committed write and bumps the
// generation again, so a miss that started between the two bumps is
// rejected as well.
func (r *UserRepository) invalidate(ctx context.Context, id string) {
	r.bump(ctx, id)
	if err := r.client.Del(ctx, key(id)).Err(); err != nil {
		r.warn(ctx, "redis del user", id, err)
	}
}

func (r *UserRepository) warn(ctx context.Context, op, id string, err error) {
	logger.WithContext(ctx, r.logger).WarnContext(ctx, "user cache degraded",
		slog.String("op", op),
		slog.String("user_id", id),
		slog.String("error", err.Error()),
	)
}
