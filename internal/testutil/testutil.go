// Package testutil holds database fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emilythestrangee/lireddit/backend/internal/database"
	"github.com/emilythestrangee/lireddit/backend/internal/models"
)

const postgresImage = "postgres:16-alpine"

// OpenSQLite returns a migrated SQLite database living in the test's temp dir.
func OpenSQLite(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewDatabase(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "lireddit.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// OpenPostgres starts a throwaway Postgres container and returns a migrated
// database connected through driver. Skipped in -short mode or without Docker.
func OpenPostgres(t *testing.T, driver string) *database.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("lireddit"),
		tcpostgres.WithUsername("lireddit"),
		tcpostgres.WithPassword("lireddit"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to read connection string: %v", err)
	}

	db, err := database.NewDatabase(database.Config{Driver: driver, DSN: dsn, MaxOpenConns: 32}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	user := models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Password: "not-a-real-hash",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

func CreatePost(t *testing.T, db *gorm.DB, creatorID int, title string, createdAt time.Time) models.Post {
	t.Helper()
	post := models.Post{
		Title:     title,
		Text:      "text of " + title,
		CreatorID: creatorID,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: createdAt.UTC(),
	}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("failed to create post %s: %v", title, err)
	}
	return post
}

// PointsInvariant fails the test unless the post's points equal the sum of its votes.
func PointsInvariant(t *testing.T, db *gorm.DB, postID int) int {
	t.Helper()
	var post models.Post
	if err := db.Select("points").Where("id = ?", postID).Take(&post).Error; err != nil {
		t.Fatalf("failed to load post %d: %v", postID, err)
	}
	var sum int
	if err := db.Model(&models.Vote{}).Where("post_id = ?", postID).Select("COALESCE(SUM(value), 0)").Scan(&sum).Error; err != nil {
		t.Fatalf("failed to sum votes for post %d: %v", postID, err)
	}
	if post.Points != sum {
		t.Fatalf("post %d points %d != vote sum %d", postID, post.Points, sum)
	}
	return post.Points
}
