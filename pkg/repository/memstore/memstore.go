package memstore

import (
	"context"
	"sync"

	"github.com/cuemby/wsomgr/pkg/repository"
	"github.com/cuemby/wsomgr/pkg/types"
)

// Store is a mutex-guarded, in-process repository.Store.
type Store struct {
	mu sync.Mutex

	hasConfig bool
	config    types.Config
	plan      types.Plan

	configWatchers []chan types.Config
	planWatchers   []chan types.Plan
}

// New returns an empty Store, equivalent to a freshly provisioned
// database with no Config and Plan at version 0.
func New() *Store {
	return &Store{plan: types.NewPlan()}
}

// SaveConfig overwrites the Config singleton unconditionally and fans
// it out to every watcher, mirroring mongostore.Store.SaveConfig.
func (s *Store) SaveConfig(ctx context.Context, cfg types.Config) error {
	s.mu.Lock()
	s.hasConfig = true
	s.config = cfg
	watchers := append([]chan types.Config(nil), s.configWatchers...)
	s.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- cfg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// GetConfig returns the stored Config, or repository.ErrNotConfigured.
func (s *Store) GetConfig(ctx context.Context) (types.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasConfig {
		return types.Config{}, repository.ErrNotConfigured
	}
	return s.config, nil
}

// GetPlan returns the stored Plan.
func (s *Store) GetPlan(ctx context.Context) (types.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan, nil
}

// SavePlan performs the same version-gated compare-and-swap as
// mongostore: it only applies plan when the stored version is exactly
// plan.Version-1, and on success fans the new Plan out to every
// channel returned by a prior WatchPlan call.
func (s *Store) SavePlan(ctx context.Context, plan types.Plan) (bool, error) {
	s.mu.Lock()
	if s.plan.Version != plan.Version-1 {
		s.mu.Unlock()
		return false, nil
	}
	s.plan = plan
	watchers := append([]chan types.Plan(nil), s.planWatchers...)
	s.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- plan:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
	return true, nil
}

// WatchConfig returns a channel fed by every subsequent SaveConfig
// call. It is closed when ctx is done.
func (s *Store) WatchConfig(ctx context.Context) <-chan types.Config {
	ch := make(chan types.Config)
	s.mu.Lock()
	s.configWatchers = append(s.configWatchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.configWatchers {
			if w == ch {
				s.configWatchers = append(s.configWatchers[:i], s.configWatchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// WatchPlan returns a channel fed by every subsequent successful
// SavePlan call. It is closed when ctx is done.
func (s *Store) WatchPlan(ctx context.Context) <-chan types.Plan {
	ch := make(chan types.Plan)
	s.mu.Lock()
	s.planWatchers = append(s.planWatchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.planWatchers {
			if w == ch {
				s.planWatchers = append(s.planWatchers[:i], s.planWatchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// Close is a no-op; Store holds no external resources.
func (s *Store) Close(ctx context.Context) error {
	return nil
}

var _ repository.Store = (*Store)(nil)
