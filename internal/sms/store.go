package sms

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const codeKeyPrefix = "sms:code:" // sms:code:{phone} -> code, expires with the TTL

var (
	ErrRateLimited  = errors.New("sms sends are rate limited")
	ErrCodeExpired  = errors.New("verification code expired or never sent")
	ErrCodeMismatch = errors.New("verification code does not match")
)

// Store keeps one pending verification code per phone number in Redis,
// each under its own TTL key. Sending a new code overwrites the old one.
// The limiter throttles the whole send path, not individual phones.
type Store struct {
	rdb     *redis.Client
	ttl     time.Duration
	limiter *rate.Limiter
}

func NewStore(rdb *redis.Client, ttl time.Duration, sendsPerSecond int) *Store {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	if sendsPerSecond <= 0 {
		sendsPerSecond = 200
	}
	return &Store{
		rdb:     rdb,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Limit(sendsPerSecond), sendsPerSecond),
	}
}

// Issue generates and stores a fresh 5-digit code for the phone.
func (s *Store) Issue(ctx context.Context, phone string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("phone required")
	}
	if !s.limiter.Allow() {
		return "", ErrRateLimited
	}

	code := fmt.Sprintf("%05d", 10000+rand.Intn(90000))
	if err := s.rdb.Set(ctx, codeKeyPrefix+phone, code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store sms code: %w", err)
	}
	return code, nil
}

// Consume verifies the code and deletes it on success. A wrong code
// leaves the stored one in place for a retry within the TTL.
func (s *Store) Consume(ctx context.Context, phone, code string) error {
	stored, err := s.rdb.Get(ctx, codeKeyPrefix+phone).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("read sms code: %w", err)
	}
	if stored != code {
		return ErrCodeMismatch
	}

	s.rdb.Del(ctx, codeKeyPrefix+phone)
	return nil
}
