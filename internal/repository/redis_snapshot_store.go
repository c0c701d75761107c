package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	drepo "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
)

// RedisSnapshotStore persists worker snapshots as JSON values keyed by
// bot ID under a common prefix.
type RedisSnapshotStore struct {
	cli    *redis.Client
	prefix string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedisSnapshotStore(cfg RedisConfig) (*RedisSnapshotStore, error) {
	cli := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := cli.Ping(context.Background()).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "navigator"
	}
	return &RedisSnapshotStore{cli: cli, prefix: prefix}, nil
}

var _ drepo.SnapshotStore = (*RedisSnapshotStore)(nil)

func (s *RedisSnapshotStore) key(botID string) string {
	return s.prefix + ":snapshot:" + botID
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap *models.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.BotID, err)
	}
	if err := s.cli.Set(ctx, s.key(snap.BotID), b, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.BotID, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, botID string) (*models.Snapshot, error) {
	b, err := s.cli.Get(ctx, s.key(botID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", botID, err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", botID, err)
	}
	return &snap, nil
}

// LoadAll scans every snapshot key. Entries that fail to decode are returned
// as nil values so the caller can log and drop them without failing the load.
func (s *RedisSnapshotStore) LoadAll(ctx context.Context) (map[string]*models.Snapshot, error) {
	out := make(map[string]*models.Snapshot)
	iter := s.cli.Scan(ctx, 0, s.prefix+":snapshot:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		botID := key[len(s.prefix)+len(":snapshot:"):]
		b, err := s.cli.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		var snap models.Snapshot
		if err := json.Unmarshal(b, &snap); err != nil {
			out[botID] = nil
			continue
		}
		out[botID] = &snap
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}
	return out, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, botID string) error {
	if err := s.cli.Del(ctx, s.key(botID)).Err(); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", botID, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Close() error { return s.cli.Close() }
