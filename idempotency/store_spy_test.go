package idempotency_test

import (
	"context"
	"sync"
	"time"

	"github.com/velmie/idempo"
)

// storeSpy counts store calls and fails SetResponse a configured number of times
type storeSpy struct {
	inner idempo.Store

	mu          sync.Mutex
	deleteCalls int

	failSetResponseErr       error
	failSetResponseRemaining int
}

func newStoreSpy(inner idempo.Store) *storeSpy {
	return &storeSpy{inner: inner}
}

func (s *storeSpy) Create(
	ctx context.Context,
	key string,
	fp idempo.Fingerprint,
	ttl time.Duration,
) (*idempo.Entry, bool, error) {
	return s.inner.Create(ctx, key, fp, ttl)
}

func (s *storeSpy) Get(ctx context.Context, key string) (*idempo.Entry, error) {
	return s.inner.Get(ctx, key)
}

func (s *storeSpy) SetResponse(
	ctx context.Context,
	key, token string,
	resp *idempo.Response,
	ttl time.Duration,
) error {
	s.mu.Lock()
	shouldFail := s.failSetResponseRemaining > 0
	if shouldFail {
		s.failSetResponseRemaining--
	}
	s.mu.Unlock()

	if shouldFail {
		return s.failSetResponseErr
	}
	return s.inner.SetResponse(ctx, key, token, resp, ttl)
}

func (s *storeSpy) Delete(ctx context.Context, key, token string) error {
	s.mu.Lock()
	s.deleteCalls++
	s.mu.Unlock()

	return s.inner.Delete(ctx, key, token)
}

type storeSpySnapshot struct {
	DeleteCalls int
}

func (s *storeSpy) Snapshot() storeSpySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeSpySnapshot{DeleteCalls: s.deleteCalls}
}
