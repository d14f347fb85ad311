package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/wsomgr/pkg/types"
)

// ErrNotConfigured is returned by GetConfig when the Config singleton
// has never been written. It is fatal at startup (spec error kind 2).
var ErrNotConfigured = errors.New("configuration not found; configure first with wsoctl")

// WatchErrorRecoveryInterval is the fixed backoff watch loops sleep for
// after a transport error before reconnecting.
const WatchErrorRecoveryInterval = 10 * time.Second

// Store is the typed facade over the two global singleton documents.
// GetConfig/GetPlan surface store errors to the caller; SavePlan
// surfaces its false return instead of an error for the ordinary "lost
// the race" case. WatchConfig/WatchPlan never return — they swallow
// transient errors internally and retry.
type Store interface {
	GetConfig(ctx context.Context) (types.Config, error)
	GetPlan(ctx context.Context) (types.Plan, error)
	// SavePlan performs a compare-and-swap write conditioned on the
	// stored version being plan.Version-1. It returns true iff exactly
	// one document changed.
	SavePlan(ctx context.Context, plan types.Plan) (bool, error)
	// WatchConfig streams the full Config document after every update.
	// The returned channel is closed only when ctx is done.
	WatchConfig(ctx context.Context) <-chan types.Config
	// WatchPlan streams the full Plan document after every update.
	// The returned channel is closed only when ctx is done.
	WatchPlan(ctx context.Context) <-chan types.Plan
	Close(ctx context.Context) error
}
