package retry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/velmie/retry"
)

type MemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *retry.MemoryStore
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = retry.NewMemoryStore()
}

func (s *MemoryStoreSuite) TestGetAbsent() {
	count, found, err := s.store.Get(s.ctx, "missing")
	s.Require().NoError(err)
	s.Require().False(found)
	s.Require().Zero(count)
}

func (s *MemoryStoreSuite) TestIncrementAndClear() {
	for i := int64(1); i <= 3; i++ {
		count, err := s.store.Increment(s.ctx, "k")
		s.Require().NoError(err)
		s.Require().Equal(i, count)
	}

	count, found, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Require().True(found)
	s.Require().EqualValues(3, count)

	s.Require().NoError(s.store.Clear(s.ctx, "k"))
	_, found, err = s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Require().False(found)
}

func (s *MemoryStoreSuite) TestAckFlag() {
	acked, err := s.store.HasBeenAcked(s.ctx, "k")
	s.Require().NoError(err)
	s.Require().False(acked)

	s.Require().NoError(s.store.Ack(s.ctx, "k"))
	acked, err = s.store.HasBeenAcked(s.ctx, "k")
	s.Require().NoError(err)
	s.Require().True(acked)

	// the ack flag lives under its own key
	_, found, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Require().False(found)
	_, found, err = s.store.Get(s.ctx, retry.AckKey("k"))
	s.Require().NoError(err)
	s.Require().True(found)
}

func (s *MemoryStoreSuite) TestConcurrentIncrement() {
	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.store.Increment(s.ctx, "k")
		}()
	}
	wg.Wait()

	count, _, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Require().EqualValues(workers, count)
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}
