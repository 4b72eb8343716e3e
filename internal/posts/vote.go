package posts

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/lireddit/backend/internal/database"
	"github.com/emilythestrangee/lireddit/backend/internal/models"
)

const defaultVoteAttempts = 3

// Direction is the intent of a vote request.
type Direction int

const (
	Down Direction = models.Downvote
	Up   Direction = models.Upvote
)

// DirectionFromValue maps a raw client value to a Direction: -1 is down,
// everything else is up.
func DirectionFromValue(value int) Direction {
	if value == models.Downvote {
		return Down
	}
	return Up
}

type voteAction int

const (
	voteInsert voteAction = iota // no previous vote
	voteRetract                  // same direction again: remove the vote
	voteFlip                     // opposite direction: overwrite the vote
)

// planVote decides what happens to the stored vote and by how much the
// post's points move. existing is nil when the user has not voted yet.
func planVote(existing *models.Vote, value int) (voteAction, int) {
	switch {
	case existing == nil:
		return voteInsert, value
	case existing.Value == value:
		return voteRetract, -value
	default:
		return voteFlip, 2 * value
	}
}

type VoteEngineConfig struct {
	Database *gorm.DB
	// MaxAttempts bounds how often a conflicting transaction is re-run.
	MaxAttempts int
	Logger      *zap.Logger
}

// VoteEngine applies votes and keeps Post.Points equal to the sum of the
// post's votes. All coordination is left to the database transaction.
type VoteEngine struct {
	db          *gorm.DB
	maxAttempts int
	logger      *zap.Logger
}

func NewVoteEngine(cfg VoteEngineConfig) (*VoteEngine, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = defaultVoteAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoteEngine{db: cfg.Database, maxAttempts: attempts, logger: logger}, nil
}

// Vote records userID's vote on postID and returns the committed point total.
// It returns ErrUnauthorized for anonymous callers, ErrPostNotFound for a
// missing post and ErrVoteConflict when the transaction could not commit.
func (e *VoteEngine) Vote(ctx context.Context, userID, postID int, direction Direction) (int, error) {
	if userID <= 0 {
		return 0, ErrUnauthorized
	}
	value := int(DirectionFromValue(int(direction)))

	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		var points int
		points, err = e.applyVote(ctx, userID, postID, value)
		if err == nil {
			return points, nil
		}
		if !errors.Is(err, ErrVoteConflict) || ctx.Err() != nil {
			return 0, err
		}
		e.logger.Warn("vote transaction conflicted",
			zap.Int("user_id", userID),
			zap.Int("post_id", postID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return 0, err
}

func (e *VoteEngine) applyVote(ctx context.Context, userID, postID, value int) (int, error) {
	var points int
	txErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The post row lock serializes voters on the same post, including
		// two requests from the same user.
		var post models.Post
		err := lockForUpdate(tx).Select("id", "points").Where("id = ?", postID).Take(&post).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		if err != nil {
			return err
		}

		var stored models.Vote
		var existing *models.Vote
		err = tx.Where("user_id = ? AND post_id = ?", userID, postID).Take(&stored).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			existing = &stored
		}

		action, delta := planVote(existing, value)
		switch action {
		case voteInsert:
			err = tx.Create(&models.Vote{UserID: userID, PostID: postID, Value: value}).Error
		case voteRetract:
			err = tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Vote{}).Error
		case voteFlip:
			err = tx.Model(&models.Vote{}).
				Where("user_id = ? AND post_id = ?", userID, postID).
				Update("value", value).Error
		}
		if err != nil {
			return err
		}

		err = tx.Model(&models.Post{}).
			Where("id = ?", postID).
			UpdateColumn("points", gorm.Expr("points + ?", delta)).Error
		if err != nil {
			return err
		}

		var updated models.Post
		if err := tx.Select("points").Where("id = ?", postID).Take(&updated).Error; err != nil {
			return err
		}
		points = updated.Points
		return nil
	})

	switch {
	case txErr == nil:
		return points, nil
	case errors.Is(txErr, ErrPostNotFound):
		return 0, txErr
	case database.IsTransient(txErr):
		return 0, fmt.Errorf("%w: %w", ErrVoteConflict, txErr)
	default:
		e.logger.Error("vote transaction failed",
			zap.Int("user_id", userID),
			zap.Int("post_id", postID),
			zap.Error(txErr))
		return 0, fmt.Errorf("posts: apply vote: %w", txErr)
	}
}

// lockForUpdate adds FOR UPDATE where the dialect supports row locks.
// SQLite has none; its single-connection pool already serializes writers.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == database.DriverSQLite {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
