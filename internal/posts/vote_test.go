package posts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/emilythestrangee/lireddit/backend/internal/models"
	"github.com/emilythestrangee/lireddit/backend/internal/testutil"
)

func TestPlanVote(t *testing.T) {
	testCases := []struct {
		name       string
		existing   *models.Vote
		value      int
		wantAction voteAction
		wantDelta  int
	}{
		{name: "first upvote", existing: nil, value: 1, wantAction: voteInsert, wantDelta: 1},
		{name: "first downvote", existing: nil, value: -1, wantAction: voteInsert, wantDelta: -1},
		{name: "repeat upvote retracts", existing: &models.Vote{Value: 1}, value: 1, wantAction: voteRetract, wantDelta: -1},
		{name: "repeat downvote retracts", existing: &models.Vote{Value: -1}, value: -1, wantAction: voteRetract, wantDelta: 1},
		{name: "flip to down", existing: &models.Vote{Value: 1}, value: -1, wantAction: voteFlip, wantDelta: -2},
		{name: "flip to up", existing: &models.Vote{Value: -1}, value: 1, wantAction: voteFlip, wantDelta: 2},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			action, delta := planVote(testCase.existing, testCase.value)
			if action != testCase.wantAction || delta != testCase.wantDelta {
				t.Fatalf("planVote = (%d, %d), want (%d, %d)", action, delta, testCase.wantAction, testCase.wantDelta)
			}
		})
	}
}

func TestDirectionFromValue(t *testing.T) {
	if DirectionFromValue(-1) != Down {
		t.Fatalf("-1 must map to down")
	}
	for _, value := range []int{1, 0, 5, -7} {
		if DirectionFromValue(value) != Up {
			t.Fatalf("%d must map to up", value)
		}
	}
}

func newTestEngine(t *testing.T, db *gorm.DB) *VoteEngine {
	t.Helper()
	engine, err := NewVoteEngine(VoteEngineConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected engine error: %v", err)
	}
	return engine
}

func mustVote(t *testing.T, engine *VoteEngine, userID, postID int, direction Direction) int {
	t.Helper()
	points, err := engine.Vote(context.Background(), userID, postID, direction)
	if err != nil {
		t.Fatalf("vote(%d, %d, %d) failed: %v", userID, postID, direction, err)
	}
	return points
}

func TestVoteSequenceKeepsPointsEqualToVoteSum(t *testing.T) {
	db := testutil.OpenSQLite(t).DB
	engine := newTestEngine(t, db)
	author := testutil.CreateUser(t, db, "author")
	voter := testutil.CreateUser(t, db, "voter")
	post := testutil.CreatePost(t, db, author.ID, "first", time.Now())

	steps := []struct {
		direction  Direction
		wantPoints int
	}{
		{Up, 1},    // insert
		{Up, 0},    // retract
		{Down, -1}, // insert
		{Up, 1},    // flip: +2
		{Down, -1}, // flip: -2
		{Down, 0},  // retract
		{Down, -1}, // insert again
	}
	for i, step := range steps {
		points := mustVote(t, engine, voter.ID, post.ID, step.direction)
		if points != step.wantPoints {
			t.Fatalf("step %d: expected %d points, got %d", i, step.wantPoints, points)
		}
		if stored := testutil.PointsInvariant(t, db, post.ID); stored != points {
			t.Fatalf("step %d: returned %d but stored %d", i, points, stored)
		}
	}
}

func TestVoteSameDirectionTwiceRemovesVote(t *testing.T) {
	db := testutil.OpenSQLite(t).DB
	engine := newTestEngine(t, db)
	author := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author.ID, "toggle", time.Now())

	if points := mustVote(t, engine, author.ID, post.ID, Down); points != -1 {
		t.Fatalf("expected -1 after first downvote, got %d", points)
	}
	if points := mustVote(t, engine, author.ID, post.ID, Down); points != 0 {
		t.Fatalf("expected 0 after repeated downvote, got %d", points)
	}

	var count int64
	if err := db.Model(&models.Vote{}).Where("post_id = ?", post.ID).Count(&count).Error; err != nil {
		t.Fatalf("count votes: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected vote record to be deleted, found %d", count)
	}
}

func TestVoteFlipMovesPointsByTwice(t *testing.T) {
	db := testutil.OpenSQLite(t).DB
	engine := newTestEngine(t, db)
	author := testutil.CreateUser(t, db, "author")
	others := []models.User{testutil.CreateUser(t, db, "u1"), testutil.CreateUser(t, db, "u2")}
	post := testutil.CreatePost(t, db, author.ID, "flip", time.Now())

	for _, other := range others {
		mustVote(t, engine, other.ID, post.ID, Up)
	}
	before := mustVote(t, engine, author.ID, post.ID, Up)
	after := mustVote(t, engine, author.ID, post.ID, Down)
	if after-before != -2 {
		t.Fatalf("expected flip to move points by -2, went %d -> %d", before, after)
	}

	var stored models.Vote
	if err := db.Where("user_id = ? AND post_id = ?", author.ID, post.ID).Take(&stored).Error; err != nil {
		t.Fatalf("load vote: %v", err)
	}
	if stored.Value != models.Downvote {
		t.Fatalf("expected stored vote to be flipped, got %d", stored.Value)
	}
}

func TestVoteRejectsAnonymousCaller(t *testing.T) {
	db := testutil.OpenSQLite(t).DB
	engine := newTestEngine(t, db)
	author := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author.ID, "anon", time.Now())

	if _, err := engine.Vote(context.Background(), 0, post.ID, Up); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	testutil.PointsInvariant(t, db, post.ID)
}

func TestVoteOnMissingPostLeavesStoresUntouched(t *testing.T) {
	db := testutil.OpenSQLite(t).DB
	engine := newTestEngine(t, db)
	author := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author.ID, "exists", time.Now())
	mustVote(t, engine, author.ID, post.ID, Up)

	if _, err := engine.Vote(context.Background(), author.ID, post.ID+100, Up); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected ErrPostNotFound, got %v", err)
	}

	var votes int64
	if err := db.Model(&models.Vote{}).Count(&votes).Error; err != nil {
		t.Fatalf("count votes: %v", err)
	}
	if votes != 1 {
		t.Fatalf("expected only the original vote, found %d", votes)
	}
	if points := testutil.PointsInvariant(t, db, post.ID); points != 1 {
		t.Fatalf("expected existing post to keep 1 point, got %d", points)
	}
}

func TestVoteRollsBackWhenTransactionFails(t *testing.T) {
	db := testutil.OpenSQLite(t).DB
	engine := newTestEngine(t, db)
	author := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author.ID, "rollback", time.Now())

	// Points update fails after the vote row was written.
	if err := db.Exec(`CREATE TRIGGER fail_points BEFORE UPDATE OF points ON posts BEGIN SELECT RAISE(ABORT, 'points frozen'); END`).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := engine.Vote(context.Background(), author.ID, post.ID, Up); err == nil {
		t.Fatalf("expected vote to fail")
	}

	var votes int64
	if err := db.Model(&models.Vote{}).Count(&votes).Error; err != nil {
		t.Fatalf("count votes: %v", err)
	}
	if votes != 0 {
		t.Fatalf("vote row survived a rolled back transaction")
	}
	if points := testutil.PointsInvariant(t, db, post.ID); points != 0 {
		t.Fatalf("expected 0 points, got %d", points)
	}
}

func TestConcurrentVotersConverge(t *testing.T) {
	db := testutil.OpenSQLite(t).DB
	assertConcurrentVotersConverge(t, db, newTestEngine(t, db))
}

func assertConcurrentVotersConverge(t *testing.T, db *gorm.DB, engine *VoteEngine) {
	t.Helper()
	author := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author.ID, "busy", time.Now())

	const voters = 12
	users := make([]models.User, voters)
	for i := range users {
		users[i] = testutil.CreateUser(t, db, "voter"+string(rune('a'+i)))
	}

	expected := 0
	var wg sync.WaitGroup
	errs := make(chan error, voters*2)
	for i, user := range users {
		direction := Up
		if i%3 == 0 {
			direction = Down
		}
		expected += int(direction)
		// Some voters follow up with the opposite direction, flipping their record.
		flip := i%4 == 1
		if flip {
			expected -= 2 * int(direction)
		}
		wg.Add(1)
		go func(userID int, direction Direction, flip bool) {
			defer wg.Done()
			if _, err := engine.Vote(context.Background(), userID, post.ID, direction); err != nil {
				errs <- err
				return
			}
			if flip {
				if _, err := engine.Vote(context.Background(), userID, post.ID, -direction); err != nil {
					errs <- err
				}
			}
		}(user.ID, direction, flip)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent vote failed: %v", err)
	}

	if points := testutil.PointsInvariant(t, db, post.ID); points != expected {
		t.Fatalf("expected %d points after concurrent votes, got %d", expected, points)
	}
}
