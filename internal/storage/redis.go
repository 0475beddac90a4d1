package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"aina-notebook/internal/config"
	"aina-notebook/internal/model"
	"aina-notebook/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aina-notebook/storage/redis")

// RedisStore shares history between processes: presentations live in one
// hash keyed by id and every change is announced on a pub/sub channel.
type RedisStore struct {
	rdb     *redis.Client
	key     string
	channel string

	mu     sync.Mutex
	cancel map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &RedisStore{
		rdb:     rdb,
		key:     cfg.Key,
		channel: cfg.Channel,
		cancel:  make(map[string]context.CancelFunc),
	}
}

func (r *RedisStore) Init(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.Ping")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.rdb.Ping(ctx).Err(); err != nil {
		recordError(span, err)
		return fmt.Errorf("%w: failed to ping redis: %v", ErrStorageInit, err)
	}

	logger.Infof("Redis storage initialized (key %s, channel %s)", r.key, r.channel)
	return nil
}

func (r *RedisStore) Append(ctx context.Context, p *model.Presentation) error {
	ctx, span := tracer.Start(ctx, "redis.Append", trace.WithAttributes(
		attribute.String("redis.key", r.key),
		attribute.String("presentation.id", p.ID),
	))
	defer span.End()

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	created, err := r.rdb.HSetNX(ctx, r.key, p.ID, payload).Result()
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to append presentation: %w", err)
	}
	if !created {
		return ErrPresentationExists
	}

	r.announce(ctx, p.ID)
	return nil
}

func (r *RedisStore) Update(ctx context.Context, p *model.Presentation) error {
	ctx, span := tracer.Start(ctx, "redis.Update", trace.WithAttributes(
		attribute.String("redis.key", r.key),
		attribute.String("presentation.id", p.ID),
	))
	defer span.End()

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, r.key, p.ID).Result()
		if err != nil {
			return err
		}
		if !exists {
			return ErrPresentationNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key, p.ID, payload)
			return nil
		})
		return err
	}, r.key)
	if errors.Is(err, ErrPresentationNotFound) {
		return err
	}
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to update presentation: %w", err)
	}

	r.announce(ctx, p.ID)
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*model.Presentation, error) {
	ctx, span := tracer.Start(ctx, "redis.Get", trace.WithAttributes(
		attribute.String("redis.key", r.key),
		attribute.String("presentation.id", id),
	))
	defer span.End()

	payload, err := r.rdb.HGet(ctx, r.key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPresentationNotFound
	}
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to get presentation: %w", err)
	}
	return decodePresentation(payload)
}

func (r *RedisStore) List(ctx context.Context) ([]*model.Presentation, error) {
	ctx, span := tracer.Start(ctx, "redis.List", trace.WithAttributes(attribute.String("redis.key", r.key)))
	defer span.End()

	all, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to list presentations: %w", err)
	}

	list := make([]*model.Presentation, 0, len(all))
	for id, payload := range all {
		p, err := decodePresentation([]byte(payload))
		if err != nil {
			logger.Errorf("Skipping unreadable presentation %s: %v", id, err)
			continue
		}
		list = append(list, p)
	}
	sortNewestFirst(list)

	span.SetAttributes(attribute.Int("presentations", len(list)))
	return list, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.Clear", trace.WithAttributes(attribute.String("redis.key", r.key)))
	defer span.End()

	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to clear presentations: %w", err)
	}

	r.announce(ctx, "")
	return nil
}

// announce tells every subscriber, in any process, that the history changed.
// A lost announcement only delays live updates, so failures are logged.
func (r *RedisStore) announce(ctx context.Context, id string) {
	if err := r.rdb.Publish(ctx, r.channel, id).Err(); err != nil {
		logger.Warnf("Failed to publish history change for %q: %v", id, err)
	}
}

func (r *RedisStore) Subscribe(ctx context.Context, fn Listener) (func(), error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)

	pubsub := r.rdb.Subscribe(subCtx, r.channel)
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	list, err := r.List(subCtx)
	if err != nil {
		cancel()
		pubsub.Close()
		return nil, err
	}
	fn(list)

	id := uuid.NewString()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		pubsub.Close()
		return nil, ErrClosed
	}
	r.cancel[id] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer pubsub.Close()
		defer r.forget(id)

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				list, err := r.List(subCtx)
				if err != nil {
					if subCtx.Err() == nil {
						logger.Warnf("Failed to refresh history after change: %v", err)
					}
					continue
				}
				fn(list)
			}
		}
	}()

	return cancel, nil
}

func (r *RedisStore) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancel[id]; ok {
		cancel()
		delete(r.cancel, id)
	}
}

func (r *RedisStore) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for id, cancel := range r.cancel {
		cancel()
		delete(r.cancel, id)
	}
	r.mu.Unlock()

	r.wg.Wait()
	return r.rdb.Close()
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
