package genstore

import (
	"context"
	"sync"
	"time"
)

type localGen struct {
	gen    uint64
	bumped time.Time
}

// LocalGenStore keeps generations in process memory. With a positive sweep
// interval and retention it prunes keys that have not been bumped for longer
// than retention; a pruned key reads as generation 0 again, so retention must
// outlive the records it guards.
type LocalGenStore struct {
	mu   sync.RWMutex
	gens map[string]localGen

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(sweep, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: make(map[string]localGen)}
	if sweep > 0 && retention > 0 {
		s.ticker = time.NewTicker(sweep)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go s.loop(retention)
	}
	return s
}

func (s *LocalGenStore) loop(retention time.Duration) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.Cleanup(retention)
		case <-s.stopCh:
			return
		}
	}
}

func (s *LocalGenStore) Snapshot(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	g := s.gens[key].gen
	s.mu.RUnlock()
	return g, nil
}

func (s *LocalGenStore) Bump(_ context.Context, key string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	g := s.gens[key]
	g.gen++
	g.bumped = now
	s.gens[key] = g
	s.mu.Unlock()
	return g.gen, nil
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for k, g := range s.gens {
		if g.bumped.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

// Len reports how many keys currently carry a generation.
func (s *LocalGenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
	})
	return nil
}
