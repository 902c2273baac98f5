package identity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrChallengeNotFound covers unknown, expired, and already-consumed
// challenge ids.
var ErrChallengeNotFound = errors.New("challenge not found or expired")

// Challenge is the pending-verification payload kept in the challenge
// store until the user confirms the code or the TTL lapses.
type Challenge struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// ChallengeStore is a TTL'd key-value store for pending OTP challenges.
type ChallengeStore interface {
	Put(ctx context.Context, id string, ch Challenge, ttl time.Duration) error
	Get(ctx context.Context, id string) (Challenge, error)
	Delete(ctx context.Context, id string) error
}

// RedisChallengeStore keeps challenges in Redis so verification survives
// process restarts and works across replicas.
type RedisChallengeStore struct {
	client *redis.Client
}

var _ ChallengeStore = (*RedisChallengeStore)(nil)

func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func (r *RedisChallengeStore) key(id string) string {
	return "aidmap:challenge:" + id
}

func (r *RedisChallengeStore) Put(ctx context.Context, id string, ch Challenge, ttl time.Duration) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(id), raw, ttl).Err()
}

func (r *RedisChallengeStore) Get(ctx context.Context, id string) (Challenge, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Challenge{}, ErrChallengeNotFound
		}
		return Challenge{}, err
	}
	var ch Challenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

func (r *RedisChallengeStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// MemoryChallengeStore is the in-process fallback used when no Redis
// address is configured, and the test double.
type MemoryChallengeStore struct {
	mu   sync.Mutex
	data map[string]memoryChallenge
}

type memoryChallenge struct {
	challenge Challenge
	expires   time.Time
}

var _ ChallengeStore = (*MemoryChallengeStore)(nil)

func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{data: make(map[string]memoryChallenge)}
}

func (m *MemoryChallengeStore) Put(ctx context.Context, id string, ch Challenge, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = memoryChallenge{challenge: ch, expires: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryChallengeStore) Get(ctx context.Context, id string) (Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.data[id]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	if time.Now().After(item.expires) {
		delete(m.data, id)
		return Challenge{}, ErrChallengeNotFound
	}
	return item.challenge, nil
}

func (m *MemoryChallengeStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}
