// Package loaders batches the per-field lookups of one request into bulk
// queries.
package loaders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"go.uber.org/zap"

	"github.com/emilythestrangee/lireddit/backend/internal/models"
)

const (
	DefaultWait     = 2 * time.Millisecond
	DefaultMaxBatch = 100
)

// ErrBatchFetch is carried by every load of a batch whose bulk query failed.
var ErrBatchFetch = errors.New("loaders: batch fetch failed")

type Config struct {
	// Wait is how long the first Load of a batch waits for more keys.
	Wait time.Duration
	// MaxBatch caps the number of keys per bulk query.
	MaxBatch int
	Logger   *zap.Logger
}

// Loaders holds the request-scoped loaders. Build a fresh value per request;
// the caches are never shared across requests.
type Loaders struct {
	Users *dataloader.Loader[int, *models.User]
	Votes *dataloader.Loader[VoteKey, *models.Vote]
}

func New(store Store, cfg Config) *Loaders {
	wait := cfg.Wait
	if wait <= 0 {
		wait = DefaultWait
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	users := &userBatcher{store: store, logger: logger}
	votes := &voteBatcher{store: store, logger: logger}
	return &Loaders{
		Users: dataloader.NewBatchedLoader(users.load,
			dataloader.WithWait[int, *models.User](wait),
			dataloader.WithBatchCapacity[int, *models.User](maxBatch),
		),
		Votes: dataloader.NewBatchedLoader(votes.load,
			dataloader.WithWait[VoteKey, *models.Vote](wait),
			dataloader.WithBatchCapacity[VoteKey, *models.Vote](maxBatch),
		),
	}
}

// LoadUser queues id and returns a thunk resolving to the user, or nil when
// no such user exists.
func (l *Loaders) LoadUser(ctx context.Context, id int) dataloader.Thunk[*models.User] {
	return l.Users.Load(ctx, id)
}

// LoadVoteStatus queues the viewer's vote on postID. The thunk resolves to
// the vote value, or nil when the viewer has not voted. Anonymous viewers
// (viewerID 0) resolve to nil without touching the store.
func (l *Loaders) LoadVoteStatus(ctx context.Context, viewerID, postID int) func() (*int, error) {
	if viewerID <= 0 {
		return func() (*int, error) { return nil, nil }
	}
	thunk := l.Votes.Load(ctx, VoteKey{UserID: viewerID, PostID: postID})
	return func() (*int, error) {
		vote, err := thunk()
		if err != nil || vote == nil {
			return nil, err
		}
		value := vote.Value
		return &value, nil
	}
}

type userBatcher struct {
	store  Store
	logger *zap.Logger
}

func (b *userBatcher) load(ctx context.Context, ids []int) []*dataloader.Result[*models.User] {
	users, err := b.store.UsersByIDs(ctx, ids)
	if err != nil {
		b.logger.Error("user batch failed", zap.Int("keys", len(ids)), zap.Error(err))
		return failAll[*models.User](len(ids), err)
	}

	byID := make(map[int]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	results := make([]*dataloader.Result[*models.User], len(ids))
	for i, id := range ids {
		results[i] = &dataloader.Result[*models.User]{Data: byID[id]}
	}
	return results
}

type voteBatcher struct {
	store  Store
	logger *zap.Logger
}

func (b *voteBatcher) load(ctx context.Context, keys []VoteKey) []*dataloader.Result[*models.Vote] {
	votes, err := b.store.VotesByKeys(ctx, keys)
	if err != nil {
		b.logger.Error("vote batch failed", zap.Int("keys", len(keys)), zap.Error(err))
		return failAll[*models.Vote](len(keys), err)
	}

	byKey := make(map[VoteKey]*models.Vote, len(votes))
	for i := range votes {
		byKey[VoteKey{UserID: votes[i].UserID, PostID: votes[i].PostID}] = &votes[i]
	}
	results := make([]*dataloader.Result[*models.Vote], len(keys))
	for i, key := range keys {
		results[i] = &dataloader.Result[*models.Vote]{Data: byKey[key]}
	}
	return results
}

func failAll[V any](n int, cause error) []*dataloader.Result[V] {
	err := fmt.Errorf("%w: %w", ErrBatchFetch, cause)
	results := make([]*dataloader.Result[V], n)
	for i := range results {
		results[i] = &dataloader.Result[V]{Error: err}
	}
	return results
}

type contextKey struct{}

// WithLoaders returns a copy of ctx carrying l.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// For returns the loaders stored in ctx, or nil.
func For(ctx context.Context) *Loaders {
	l, _ := ctx.Value(contextKey{}).(*Loaders)
	return l
}
