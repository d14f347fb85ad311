// Package mongostore implements repository.Store against MongoDB,
// mirroring the original motor/pymongo implementation: two collections,
// each holding one document keyed by _id "global", compare-and-swap
// writes via replace_one, and change-stream watches with a fixed
// reconnect backoff.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/wsomgr/pkg/log"
	"github.com/cuemby/wsomgr/pkg/repository"
	"github.com/cuemby/wsomgr/pkg/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const globalID = "global"

// Store is a MongoDB-backed repository.Store.
type Store struct {
	client          *mongo.Client
	configs         *mongo.Collection
	plans           *mongo.Collection
	recoveryBackoff time.Duration
}

// Config holds the settings needed to connect to the backing store.
type Config struct {
	// ConnectionString is a "mongodb://..." DSN naming exactly one host.
	ConnectionString string
	// RecoveryBackoff overrides repository.WatchErrorRecoveryInterval
	// for tests; zero means use the default.
	RecoveryBackoff time.Duration
}

// Connect dials MongoDB and returns a Store bound to its default database.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.ConnectionString))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	dbName, err := defaultDatabaseName(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	backoff := cfg.RecoveryBackoff
	if backoff == 0 {
		backoff = repository.WatchErrorRecoveryInterval
	}

	return &Store{
		client:          client,
		configs:         db.Collection("configs"),
		plans:           db.Collection("plans"),
		recoveryBackoff: backoff,
	}, nil
}

// defaultDatabaseName extracts the database name from the DSN's path
// component, the same place the official drivers resolve it from (the
// "defaultauthdb" in mongodb://host/defaultauthdb?opts).
func defaultDatabaseName(connectionString string) (string, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return "", fmt.Errorf("parse connection string: %w", err)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", fmt.Errorf("connection string %q names no default database", connectionString)
	}
	return name, nil
}

// GetConfig loads the Config singleton.
func (s *Store) GetConfig(ctx context.Context) (types.Config, error) {
	var cfg types.Config
	err := s.configs.FindOne(ctx, bson.M{"_id": globalID}).Decode(&cfg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.Config{}, repository.ErrNotConfigured
	}
	if err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

// configDoc adds the singleton "_id" to a Config for storage.
type configDoc struct {
	ID           string `bson:"_id"`
	types.Config `bson:",inline"`
}

// SaveConfig overwrites the Config singleton unconditionally. Unlike
// SavePlan this is not compare-and-swap: only wsoctl calls it, and
// admin intent always wins outright.
func (s *Store) SaveConfig(ctx context.Context, cfg types.Config) error {
	_, err := s.configs.ReplaceOne(
		ctx,
		bson.M{"_id": globalID},
		configDoc{ID: globalID, Config: cfg},
		options.Replace().SetUpsert(true),
	)
	return err
}

// GetPlan loads the Plan singleton, or a fresh empty Plan if none has
// been saved yet.
func (s *Store) GetPlan(ctx context.Context) (types.Plan, error) {
	var plan types.Plan
	err := s.plans.FindOne(ctx, bson.M{"_id": globalID}).Decode(&plan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.NewPlan(), nil
	}
	if err != nil {
		return types.Plan{}, err
	}
	return plan, nil
}

// planDoc adds the singleton "_id" to a Plan for storage, inlining the
// Plan's own fields at the document's top level.
type planDoc struct {
	ID string `bson:"_id"`
	types.Plan `bson:",inline"`
}

// SavePlan performs the version-gated compare-and-swap write. It
// returns true iff exactly one document changed; a losing writer gets
// (false, nil) rather than an error, per repository.Store's contract.
func (s *Store) SavePlan(ctx context.Context, plan types.Plan) (bool, error) {
	result, err := s.plans.ReplaceOne(
		ctx,
		bson.M{"_id": globalID, "version": plan.Version - 1},
		planDoc{ID: globalID, Plan: plan},
	)
	if err != nil {
		return false, err
	}
	if result.MatchedCount > 0 {
		return result.ModifiedCount > 0, nil
	}

	// Nothing matched the expected prior version. For the very first
	// plan a cluster ever commits there is no document to match
	// against at all, so fall back to creating it; a concurrent
	// manager winning that same race surfaces as a duplicate key
	// error, which is just an ordinary lost race.
	if plan.Version != 1 {
		return false, nil
	}
	if _, err := s.plans.InsertOne(ctx, planDoc{ID: globalID, Plan: plan}); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// WatchConfig streams the full Config document after every update,
// reconnecting on transport error after recoveryBackoff.
func (s *Store) WatchConfig(ctx context.Context) <-chan types.Config {
	out := make(chan types.Config)
	go watchLoop(ctx, s.configs, s.recoveryBackoff, out, func(raw bson.Raw) (types.Config, error) {
		var cfg types.Config
		err := bson.Unmarshal(raw, &cfg)
		return cfg, err
	})
	return out
}

// WatchPlan streams the full Plan document after every update,
// reconnecting on transport error after recoveryBackoff.
func (s *Store) WatchPlan(ctx context.Context) <-chan types.Plan {
	out := make(chan types.Plan)
	go watchLoop(ctx, s.plans, s.recoveryBackoff, out, func(raw bson.Raw) (types.Plan, error) {
		var plan types.Plan
		err := bson.Unmarshal(raw, &plan)
		return plan, err
	})
	return out
}

// watchLoop is the generic shape shared by WatchConfig and WatchPlan:
// open a change stream with full_document=required, decode and forward
// every full document, and on any error log, wait backoff, and retry.
// It never returns except when ctx is cancelled.
func watchLoop[T any](ctx context.Context, coll *mongo.Collection, backoff time.Duration, out chan<- T, decode func(bson.Raw) (T, error)) {
	defer close(out)
	logger := log.WithComponent("repository")

	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := coll.Watch(ctx, mongo.Pipeline{}, options.ChangeStream().SetFullDocument(options.Required))
		if err != nil {
			logger.Error().Err(err).Msg("opening change stream")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}

		streamErr := consumeStream(ctx, stream, out, decode)
		_ = stream.Close(ctx)
		if streamErr != nil {
			logger.Error().Err(streamErr).Msg("watching for changes")
		}
		if !sleepOrDone(ctx, backoff) {
			return
		}
	}
}

func consumeStream[T any](ctx context.Context, stream *mongo.ChangeStream, out chan<- T, decode func(bson.Raw) (T, error)) error {
	for stream.Next(ctx) {
		var change struct {
			FullDocument bson.Raw `bson:"fullDocument"`
		}
		if err := stream.Decode(&change); err != nil {
			return err
		}
		value, err := decode(change.FullDocument)
		if err != nil {
			return err
		}
		select {
		case out <- value:
		case <-ctx.Done():
			return nil
		}
	}
	return stream.Err()
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
