package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/lireddit/backend/internal/models"
)

const (
	// MaxFeedLimit caps how many posts one feed page can return.
	MaxFeedLimit  = 30
	snippetLength = 140
)

var errMissingDatabase = errors.New("posts: database handle is required")

type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service owns post persistence outside of voting.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// Page is one slice of the feed.
type Page struct {
	Posts      []models.Post
	HasMore    bool
	NextCursor string
}

// Feed returns up to limit posts, newest first, created strictly before the
// time encoded in cursor. One extra row is read to compute HasMore.
func (s *Service) Feed(ctx context.Context, limit int, cursor string) (Page, error) {
	realLimit := clampLimit(limit)

	query := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(realLimit + 1)

	if cursor != "" {
		before, err := DecodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		query = query.Where("created_at < ?", before)
	}

	var posts []models.Post
	if err := query.Find(&posts).Error; err != nil {
		return Page{}, fmt.Errorf("posts: load feed: %w", err)
	}

	page := Page{HasMore: len(posts) > realLimit}
	if page.HasMore {
		posts = posts[:realLimit]
	}
	page.Posts = posts
	if len(posts) > 0 {
		page.NextCursor = EncodeCursor(posts[len(posts)-1].CreatedAt)
	}
	return page, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxFeedLimit {
		return MaxFeedLimit
	}
	return limit
}

// Get returns a single post by ID.
func (s *Service) Get(ctx context.Context, id int) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("posts: get %d: %w", id, err)
	}
	return &post, nil
}

// Create stores a new post with zero points.
func (s *Service) Create(ctx context.Context, creatorID int, title, text string) (*models.Post, error) {
	if creatorID <= 0 {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(title) == "" {
		return nil, ErrTitleRequired
	}
	post := models.Post{
		Title:     title,
		Text:      text,
		CreatorID: creatorID,
	}
	if err := s.db.WithContext(ctx).Omit("Points").Create(&post).Error; err != nil {
		return nil, fmt.Errorf("posts: create: %w", err)
	}
	post.Points = 0
	return &post, nil
}

// Update changes title and/or text of a post owned by creatorID. Nil
// arguments leave the field untouched.
func (s *Service) Update(ctx context.Context, id, creatorID int, title, text *string) (*models.Post, error) {
	if creatorID <= 0 {
		return nil, ErrUnauthorized
	}
	if title != nil && strings.TrimSpace(*title) == "" {
		return nil, ErrTitleRequired
	}

	changes := map[string]any{}
	if title != nil {
		changes["title"] = *title
	}
	if text != nil {
		changes["text"] = *text
	}

	var post models.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(changes) > 0 {
			result := tx.Model(&models.Post{}).
				Where("id = ? AND creator_id = ?", id, creatorID).
				Updates(changes)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrPostNotFound
			}
		}
		err := tx.Where("id = ? AND creator_id = ?", id, creatorID).Take(&post).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		return err
	})
	if errors.Is(err, ErrPostNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("posts: update %d: %w", id, err)
	}
	return &post, nil
}

// Delete removes a post owned by creatorID together with its votes. It
// reports false when no such post exists.
func (s *Service) Delete(ctx context.Context, id, creatorID int) (bool, error) {
	if creatorID <= 0 {
		return false, ErrUnauthorized
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		err := tx.Select("id").Where("id = ? AND creator_id = ?", id, creatorID).Take(&post).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, id).Error
	})
	if errors.Is(err, ErrPostNotFound) {
		return false, nil
	}
	if err != nil {
		s.logger.Error("failed to delete post", zap.Int("post_id", id), zap.Error(err))
		return false, fmt.Errorf("posts: delete %d: %w", id, err)
	}
	return true, nil
}

// TextSnippet is the preview shown in the feed.
func TextSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength])
}
