package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "arbor:"

// noExpiry is the index score of maps saved without a TTL (2100-01-01).
const noExpiry = 4102444800

// Store implements ports.MapStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ ports.MapStore = (*Store)(nil)

type Option func(*Store)

// WithTTL sets the expiration for maps.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for maps.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix + "map:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(mapID string) string {
	return s.prefix + mapID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the tree as JSON. A nil root is stored as "null".
func (s *Store) Save(ctx context.Context, mapID string, root *domain.Node) error {
	data, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to marshal map: %w", err)
	}

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = noExpiry
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(mapID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: mapID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the tree from Redis.
func (s *Store) Load(ctx context.Context, mapID string) (*domain.Node, error) {
	val, err := s.client.Get(ctx, s.key(mapID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrMapNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var root *domain.Node
	if err := json.Unmarshal(val, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal map %s: %w", mapID, err)
	}
	return root, nil
}

// Delete removes the map and its index entry.
func (s *Store) Delete(ctx context.Context, mapID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(mapID))
	pipe.ZRem(ctx, s.indexKey(), mapID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the IDs of live maps, pruning expired index entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired maps: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
