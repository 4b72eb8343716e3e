package loaders

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"github.com/emilythestrangee/lireddit/backend/internal/models"
)

// VoteKey identifies one user's vote on one post.
type VoteKey struct {
	UserID int
	PostID int
}

// Store is the bulk read side the loaders batch against.
type Store interface {
	UsersByIDs(ctx context.Context, ids []int) ([]models.User, error)
	VotesByKeys(ctx context.Context, keys []VoteKey) ([]models.Vote, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore returns a Store backed by db.
func NewStore(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, errors.New("loaders: database handle is required")
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) UsersByIDs(ctx context.Context, ids []int) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *gormStore) VotesByKeys(ctx context.Context, keys []VoteKey) ([]models.Vote, error) {
	var votes []models.Vote
	if len(keys) == 0 {
		return votes, nil
	}

	query, args, err := votesByKeysQuery(keys)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}

// votesByKeysQuery builds one statement matching every (user_id, post_id) pair.
func votesByKeysQuery(keys []VoteKey) (string, []any, error) {
	pairs := make(sq.Or, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, sq.And{
			sq.Eq{"user_id": key.UserID},
			sq.Eq{"post_id": key.PostID},
		})
	}
	query, args, err := sq.Select("user_id", "post_id", "value").
		From("votes").
		Where(pairs).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("loaders: build vote query: %w", err)
	}
	return query, args, nil
}
