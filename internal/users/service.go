// Package users implements registration, login and the password reset flow.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/emilythestrangee/lireddit/backend/internal/database"
	"github.com/emilythestrangee/lireddit/backend/internal/models"
	"github.com/emilythestrangee/lireddit/backend/internal/notify"
)

const (
	defaultResetTTL       = 72 * time.Hour
	defaultResetURLPrefix = "http://localhost:3000/change-password/"
)

var errMissingDatabase = errors.New("users: database handle is required")

type ServiceConfig struct {
	Database *gorm.DB
	Notifier notify.Notifier
	Logger   *zap.Logger
	// BcryptCost defaults to bcrypt.DefaultCost; tests use bcrypt.MinCost.
	BcryptCost     int
	ResetTTL       time.Duration
	ResetURLPrefix string
	Clock          func() time.Time
}

type Service struct {
	db             *gorm.DB
	notifier       notify.Notifier
	logger         *zap.Logger
	bcryptCost     int
	resetTTL       time.Duration
	resetURLPrefix string
	clock          func() time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	resetTTL := cfg.ResetTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	prefix := cfg.ResetURLPrefix
	if prefix == "" {
		prefix = defaultResetURLPrefix
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:             cfg.Database,
		notifier:       notifier,
		logger:         logger,
		bcryptCost:     cost,
		resetTTL:       resetTTL,
		resetURLPrefix: prefix,
		clock:          clock,
	}, nil
}

// Register validates input and creates the user. Validation problems and
// taken usernames or emails come back as field errors, not as an error.
func (s *Service) Register(ctx context.Context, input models.UsernamePasswordInput) (*models.User, []models.FieldError, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	if fieldErrs := validateRegister(input); fieldErrs != nil {
		return nil, fieldErrs, nil
	}

	var existing models.User
	err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", input.Username, input.Email).
		Take(&existing).Error
	switch {
	case err == nil:
		return nil, takenError(existing, input), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil, fmt.Errorf("users: lookup existing: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("users: hash password: %w", err)
	}

	user := models.User{
		Username: input.Username,
		Email:    input.Email,
		Password: string(hash),
		Phone:    strings.TrimSpace(input.Phone),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// Lost a race with a concurrent registration.
		if database.IsUniqueViolation(err) {
			if strings.Contains(err.Error(), "email") {
				return nil, fieldError("email", "Email already taken"), nil
			}
			return nil, fieldError("username", "Username already taken"), nil
		}
		return nil, nil, fmt.Errorf("users: create: %w", err)
	}

	s.logger.Info("user registered", zap.Int("user_id", user.ID))
	return &user, nil, nil
}

func takenError(existing models.User, input models.UsernamePasswordInput) []models.FieldError {
	if strings.EqualFold(existing.Email, input.Email) {
		return fieldError("email", "Email already taken")
	}
	return fieldError("username", "Username already taken")
}

// Login checks credentials. Input containing an @ is treated as an email.
func (s *Service) Login(ctx context.Context, usernameOrEmail, password string) (*models.User, []models.FieldError, error) {
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	column := "username"
	if strings.Contains(usernameOrEmail, "@") {
		column = "email"
	}

	var user models.User
	err := s.db.WithContext(ctx).Where(column+" = ?", usernameOrEmail).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fieldError("username_or_email", "Incorrect username or email"), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("users: login lookup: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, fieldError("password", "Incorrect password"), nil
	}
	return &user, nil, nil
}

// ForgotPassword issues a reset token and sends the link to the user. It
// returns false, without an error, when the email is malformed or unknown.
func (s *Service) ForgotPassword(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return false, nil
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("users: forgot password lookup: %w", err)
	}

	token := models.PasswordResetToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: s.clock().Add(s.resetTTL).UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&token).Error; err != nil {
		return false, fmt.Errorf("users: store reset token: %w", err)
	}

	msg := notify.Message{
		To:      notify.Recipient{Email: user.Email, Phone: user.Phone},
		Subject: "Reset your password",
		Body:    s.resetURLPrefix + token.Token,
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send reset link", zap.Int("user_id", user.ID), zap.Error(err))
		return false, fmt.Errorf("users: send reset link: %w", err)
	}
	return true, nil
}

// ChangePassword redeems a reset token. The token is consumed together with
// the password update.
func (s *Service) ChangePassword(ctx context.Context, token, newPassword string) (*models.User, []models.FieldError, error) {
	if fieldErrs := validatePassword("new_password", newPassword); fieldErrs != nil {
		return nil, fieldErrs, nil
	}

	var reset models.PasswordResetToken
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&reset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !s.clock().Before(reset.ExpiresAt)) {
		return nil, fieldError("token", "Token Expired"), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("users: load reset token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("users: hash password: %w", err)
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", reset.UserID).Take(&user).Error; err != nil {
			return err
		}
		if err := tx.Model(&user).Update("password", string(hash)).Error; err != nil {
			return err
		}
		return tx.Where("token = ?", token).Delete(&models.PasswordResetToken{}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fieldError("token", "Token Invalid"), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("users: change password: %w", err)
	}
	return &user, nil, nil
}

// CurrentUser returns the user behind a session, or nil for anonymous or
// deleted users.
func (s *Service) CurrentUser(ctx context.Context, id int) (*models.User, error) {
	if id <= 0 {
		return nil, nil
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: current user: %w", err)
	}
	return &user, nil
}
