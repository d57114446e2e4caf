package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLeaseHeld is returned when another owner holds the key.
var ErrLeaseHeld = errors.New("lease held by another owner")

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)

	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// Lease is an exclusive claim on one Redis key. It renews itself at a third
// of its TTL until released; if the key is lost in the meantime renewal
// stops and Lost is closed.
type Lease struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
	logger *zap.SugaredLogger

	stop     chan struct{}
	lost     chan struct{}
	lostOnce sync.Once
	once     sync.Once
	wg       sync.WaitGroup
}

// Acquire takes the lease on key without blocking.
func Acquire(ctx context.Context, client redis.Cmdable, key string, ttl time.Duration, logger *zap.SugaredLogger) (*Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lease ttl must be > 0")
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrLeaseHeld)
	}

	l := &Lease{
		client: client,
		key:    key,
		token:  token,
		ttl:    ttl,
		logger: logger,
		stop:   make(chan struct{}),
		lost:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.renew()
	return l, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lease token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (l *Lease) Key() string { return l.key }

// Lost is closed once renewal finds the key gone or owned by someone else.
func (l *Lease) Lost() <-chan struct{} { return l.lost }

func (l *Lease) renew() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				l.logger.Warnw("Lease renewal failed", "key", l.key, "error", err)
				continue
			}
			if n == 0 {
				l.logger.Warnw("Lease lost", "key", l.key)
				l.lostOnce.Do(func() { close(l.lost) })
				return
			}
		}
	}
}

// Release stops renewal and deletes the key if this lease still owns it.
// Calling it again is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		l.wg.Wait()
		if _, rerr := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result(); rerr != nil {
			err = fmt.Errorf("failed to release lease %s: %w", l.key, rerr)
		}
	})
	return err
}
