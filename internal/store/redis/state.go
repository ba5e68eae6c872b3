// Package redis stores the processing marker in Redis so several hosts can
// share one dedup state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"fxsignal/internal/model"
)

const defaultKeyPrefix = "fxsignal:state:"

// Config configures the Redis state store.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Key      string // state key; defaults to "fxsignal:state:<symbol>"
	Symbol   string
}

// StateStore keeps model.ProcessingState as a JSON string under one key.
type StateStore struct {
	client  *goredis.Client
	key     string
	breaker *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (s *StateStore) Client() *goredis.Client { return s.client }

// New creates the store and pings the server.
func New(cfg Config) (*StateStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg.Key, cfg.Symbol), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, key, symbol string) *StateStore {
	if key == "" {
		key = defaultKeyPrefix + symbol
	}
	cb := NewCircuitBreaker(3, 30*time.Second)
	cb.IsFailure = func(err error) bool { return !errors.Is(err, goredis.Nil) }
	return &StateStore{client: client, key: key, breaker: cb}
}

// Key returns the Redis key holding the state.
func (s *StateStore) Key() string { return s.key }

// Breaker exposes the circuit breaker so callers can observe transitions.
func (s *StateStore) Breaker() *CircuitBreaker { return s.breaker }

// Load reads the state; a missing key is the zero state.
func (s *StateStore) Load(ctx context.Context) (model.ProcessingState, error) {
	var raw string
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.client.Get(ctx, s.key).Result()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		return model.ProcessingState{}, nil
	}
	if err != nil {
		return model.ProcessingState{}, fmt.Errorf("redis load state: %w", err)
	}

	var st model.ProcessingState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return model.ProcessingState{}, fmt.Errorf("redis decode state: %w", err)
	}
	return st, nil
}

// Save replaces the state.
func (s *StateStore) Save(ctx context.Context, st model.ProcessingState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis encode state: %w", err)
	}
	err = s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.client.Set(ctx, s.key, data, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("redis save state: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *StateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *StateStore) Close() error {
	return s.client.Close()
}
