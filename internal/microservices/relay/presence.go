package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceKey is the Redis hash holding the latest relay snapshot.
const PresenceKey = "gfxrelay:presence"

const peerFieldPrefix = "peer:"

// PeerSnapshot is the externally visible state of one peer.
type PeerSnapshot struct {
	ID              string    `json:"id"`
	Role            string    `json:"role"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// Snapshot is what gets published after every sweep.
type Snapshot struct {
	Status    Status         `json:"status"`
	Peers     []PeerSnapshot `json:"peers"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PresenceStore receives relay snapshots for out-of-process observers.
type PresenceStore interface {
	Publish(ctx context.Context, snap Snapshot) error
	Close() error
}

// NopPresence discards snapshots. It is the default when presence is disabled.
type NopPresence struct{}

func (NopPresence) Publish(context.Context, Snapshot) error { return nil }
func (NopPresence) Close() error                            { return nil }

// RedisPresence mirrors the snapshot into a single Redis hash with a TTL, so
// the key disappears on its own when the relay dies.
type RedisPresence struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisPresence connects to Redis and verifies the connection.
func NewRedisPresence(addr, password string, ttl time.Duration) (*RedisPresence, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPresence{client: rdb, key: PresenceKey, ttl: ttl}, nil
}

// Publish replaces the hash with snap.
func (p *RedisPresence) Publish(ctx context.Context, snap Snapshot) error {
	fields := map[string]any{
		"running":       strconv.FormatBool(snap.Status.Running),
		"port":          snap.Status.Port,
		"total_clients": snap.Status.TotalClients,
		"main_clients":  snap.Status.MainClients,
		"sub_clients":   snap.Status.SubClients,
		"updated_at":    snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, peer := range snap.Peers {
		raw, err := json.Marshal(peer)
		if err != nil {
			return err
		}
		fields[peerFieldPrefix+peer.ID] = string(raw)
	}

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.key)
		pipe.HSet(ctx, p.key, fields)
		pipe.Expire(ctx, p.key, p.ttl)
		return nil
	})
	return err
}

// Load reads the last published snapshot. It returns (nil, nil) when the key
// is absent or expired.
func (p *RedisPresence) Load(ctx context.Context) (*Snapshot, error) {
	fields, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeSnapshot(fields)
}

func decodeSnapshot(fields map[string]string) (*Snapshot, error) {
	snap := &Snapshot{}
	snap.Status.Running, _ = strconv.ParseBool(fields["running"])
	snap.Status.Port, _ = strconv.Atoi(fields["port"])
	snap.Status.TotalClients, _ = strconv.Atoi(fields["total_clients"])
	snap.Status.MainClients, _ = strconv.Atoi(fields["main_clients"])
	snap.Status.SubClients, _ = strconv.Atoi(fields["sub_clients"])
	if ts := fields["updated_at"]; ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("presence updated_at: %w", err)
		}
		snap.UpdatedAt = t
	}

	for field, raw := range fields {
		if !strings.HasPrefix(field, peerFieldPrefix) {
			continue
		}
		var peer PeerSnapshot
		if err := json.Unmarshal([]byte(raw), &peer); err != nil {
			return nil, fmt.Errorf("presence %s: %w", field, err)
		}
		snap.Peers = append(snap.Peers, peer)
	}
	sort.Slice(snap.Peers, func(i, j int) bool {
		return snap.Peers[i].ConnectedAt.Before(snap.Peers[j].ConnectedAt)
	})
	return snap, nil
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}
