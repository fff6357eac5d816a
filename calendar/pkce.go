package calendar

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// newVerifier returns a fresh PKCE code verifier.
func newVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// challengeS256 derives the S256 code challenge for a verifier.
func challengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ErrStateExpired is returned when the redirect leg presents a state the
// store no longer holds a verifier for.
var ErrStateExpired = errors.New("calendar: authorization state expired or unknown")

// StateStore holds PKCE verifiers between the two legs of the redirect.
type StateStore interface {
	// PutVerifier stores the verifier under the state nonce.
	PutVerifier(ctx context.Context, state, verifier string) error
	// TakeVerifier retrieves and deletes the verifier; ErrStateExpired
	// when absent.
	TakeVerifier(ctx context.Context, state string) (string, error)
}

// RedisStateStore keeps pending verifiers in Redis so any API instance
// can complete a handshake another instance started.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore creates a state store with the given entry TTL.
func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStateStore{client: client, ttl: ttl}
}

func stateKey(state string) string { return "pkce:" + state }

func (r *RedisStateStore) PutVerifier(ctx context.Context, state, verifier string) error {
	return r.client.Set(ctx, stateKey(state), verifier, r.ttl).Err()
}

func (r *RedisStateStore) TakeVerifier(ctx context.Context, state string) (string, error) {
	verifier, err := r.client.GetDel(ctx, stateKey(state)).Result()
	if err == redis.Nil {
		return "", ErrStateExpired
	}
	if err != nil {
		return "", err
	}
	return verifier, nil
}
