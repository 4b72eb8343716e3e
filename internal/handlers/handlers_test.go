package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/emilythestrangee/lireddit/backend/internal/auth"
	"github.com/emilythestrangee/lireddit/backend/internal/loaders"
	"github.com/emilythestrangee/lireddit/backend/internal/middleware"
	"github.com/emilythestrangee/lireddit/backend/internal/models"
	"github.com/emilythestrangee/lireddit/backend/internal/notify"
	"github.com/emilythestrangee/lireddit/backend/internal/posts"
	"github.com/emilythestrangee/lireddit/backend/internal/testutil"
	"github.com/emilythestrangee/lireddit/backend/internal/users"
)

type countingStore struct {
	loaders.Store
	mu        sync.Mutex
	userCalls int
	voteCalls int
}

func (s *countingStore) UsersByIDs(ctx context.Context, ids []int) ([]models.User, error) {
	s.mu.Lock()
	s.userCalls++
	s.mu.Unlock()
	return s.Store.UsersByIDs(ctx, ids)
}

func (s *countingStore) VotesByKeys(ctx context.Context, keys []loaders.VoteKey) ([]models.Vote, error) {
	s.mu.Lock()
	s.voteCalls++
	s.mu.Unlock()
	return s.Store.VotesByKeys(ctx, keys)
}

type testEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	sessions *auth.Manager
	store    *countingStore
	votes    *posts.VoteEngine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.OpenSQLite(t).DB

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Notifier:   notify.NewLogNotifier(nil),
		BcryptCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("users service: %v", err)
	}
	postService, err := posts.NewService(posts.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("posts service: %v", err)
	}
	engine, err := posts.NewVoteEngine(posts.VoteEngineConfig{Database: db})
	if err != nil {
		t.Fatalf("vote engine: %v", err)
	}
	sessions, err := auth.NewManager(auth.ManagerConfig{SigningSecret: []byte("test-secret")})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	base, err := loaders.NewStore(db)
	if err != nil {
		t.Fatalf("loader store: %v", err)
	}
	store := &countingStore{Store: base}
	// A wide window keeps every load of a request in one batch.
	loaderCfg := loaders.Config{Wait: 50 * time.Millisecond}

	handler, err := NewHandler(Dependencies{
		Users:        userService,
		Posts:        postService,
		Votes:        engine,
		Sessions:     sessions,
		LoaderStore:  store,
		LoaderConfig: loaderCfg,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	router := gin.New()
	router.Use(middleware.Session(sessions, "qid", nil))
	router.Use(middleware.Loaders(store, loaderCfg))
	router.POST("/register", handler.Auth.Register)
	router.POST("/login", handler.Auth.Login)
	router.POST("/change-password", handler.Auth.ChangePassword)
	router.GET("/me", handler.Auth.GetMe)
	router.GET("/posts", handler.Post.GetPosts)
	router.GET("/posts/:id", handler.Post.GetPost)
	router.POST("/posts", middleware.AuthMiddleware(), handler.Post.CreatePost)
	router.DELETE("/posts/:id", middleware.AuthMiddleware(), handler.Post.DeletePost)
	router.POST("/posts/:id/vote", middleware.AuthMiddleware(), handler.Post.VotePost)

	return &testEnv{db: db, router: router, sessions: sessions, store: store, votes: engine}
}

func (e *testEnv) token(t *testing.T, userID int) string {
	t.Helper()
	token, _, err := e.sessions.Issue(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	request := httptest.NewRequest(method, path, &payload)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, request)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("decode %q: %v", recorder.Body.String(), err)
	}
	return value
}

func TestFeedResolvesFieldsWithOneQueryPerLoader(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	base := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	first := testutil.CreatePost(t, env.db, alice.ID, "first", base)
	testutil.CreatePost(t, env.db, bob.ID, "second", base.Add(time.Minute))
	testutil.CreatePost(t, env.db, alice.ID, "third", base.Add(2*time.Minute))
	if _, err := env.votes.Vote(context.Background(), bob.ID, first.ID, posts.Up); err != nil {
		t.Fatalf("seed vote: %v", err)
	}

	recorder := env.do(t, http.MethodGet, "/posts?limit=10", env.token(t, bob.ID), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusOK)
	}
	feed := decode[feedResponse](t, recorder)
	if len(feed.Posts) != 3 || feed.HasMore {
		t.Fatalf("expected 3 posts and no more, got %d hasMore=%v", len(feed.Posts), feed.HasMore)
	}
	wantCreators := []string{"alice", "bob", "alice"}
	for i, post := range feed.Posts {
		if post.Creator == nil || post.Creator.Username != wantCreators[i] {
			t.Fatalf("post %d: expected creator %s, got %+v", i, wantCreators[i], post.Creator)
		}
	}
	last := feed.Posts[2]
	if last.ID != first.ID || last.VoteStatus == nil || *last.VoteStatus != 1 || last.Points != 1 {
		t.Fatalf("expected bob's upvote on the oldest post, got %+v", last)
	}
	if feed.Posts[0].VoteStatus != nil || feed.Posts[1].VoteStatus != nil {
		t.Fatalf("expected no vote status on unvoted posts")
	}
	if env.store.userCalls != 1 || env.store.voteCalls != 1 {
		t.Fatalf("expected one bulk query per loader, got users=%d votes=%d", env.store.userCalls, env.store.voteCalls)
	}
}

func TestFeedAnonymousSkipsVoteLookup(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	testutil.CreatePost(t, env.db, alice.ID, "first", time.Now())

	recorder := env.do(t, http.MethodGet, "/posts", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusOK)
	}
	feed := decode[feedResponse](t, recorder)
	if len(feed.Posts) != 1 || feed.Posts[0].VoteStatus != nil {
		t.Fatalf("unexpected feed: %+v", feed)
	}
	if env.store.voteCalls != 0 {
		t.Fatalf("anonymous feed must not query votes")
	}
}

func TestFeedRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/posts?cursor=%25%25", "/posts?limit=ten"} {
		recorder := env.do(t, http.MethodGet, path, "", nil)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status code: got %d, want %d", path, recorder.Code, http.StatusBadRequest)
		}
	}
}

func TestGetMissingPostReturnsNull(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodGet, "/posts/42", "", nil)
	if recorder.Code != http.StatusOK || recorder.Body.String() != "null" {
		t.Fatalf("expected 200 null, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestCreateAndVoteThroughRouter(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	token := env.token(t, alice.ID)

	recorder := env.do(t, http.MethodPost, "/posts", token, models.CreatePostRequest{Title: "hello", Text: "world"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusCreated)
	}
	created := decode[postResponse](t, recorder)
	if created.Points != 0 || created.Creator == nil || created.Creator.ID != alice.ID {
		t.Fatalf("unexpected created post: %+v", created)
	}

	path := "/posts/" + itoa(created.ID) + "/vote"
	down := -1
	recorder = env.do(t, http.MethodPost, path, token, models.VoteRequest{Value: &down})
	if recorder.Code != http.StatusOK || recorder.Body.String() != `{"points":-1}` {
		t.Fatalf("expected -1 points, got %d %s", recorder.Code, recorder.Body.String())
	}
	recorder = env.do(t, http.MethodPost, path, token, models.VoteRequest{Value: &down})
	if recorder.Code != http.StatusOK || recorder.Body.String() != `{"points":0}` {
		t.Fatalf("expected retraction to 0 points, got %d %s", recorder.Code, recorder.Body.String())
	}
	testutil.PointsInvariant(t, env.db, created.ID)

	recorder = env.do(t, http.MethodPost, "/posts/9999/vote", token, models.VoteRequest{Value: &down})
	if recorder.Code != http.StatusNotFound || recorder.Body.String() != `{"points":null}` {
		t.Fatalf("expected 404 with null points, got %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = env.do(t, http.MethodPost, path, "", models.VoteRequest{Value: &down})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}

	recorder = env.do(t, http.MethodDelete, "/posts/"+itoa(created.ID), token, nil)
	if recorder.Code != http.StatusOK || recorder.Body.String() != `{"deleted":true}` {
		t.Fatalf("expected delete to succeed, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/register", "", models.UsernamePasswordInput{
		Username: "al", Email: "al@example.com", Password: "password1",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}
	invalid := decode[models.UserResponse](t, recorder)
	if len(invalid.Errors) != 1 || invalid.Errors[0].Field != "username" {
		t.Fatalf("expected username error, got %+v", invalid.Errors)
	}

	recorder = env.do(t, http.MethodPost, "/register", "", models.UsernamePasswordInput{
		Username: "alice", Email: "alice@example.com", Password: "password1",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusCreated)
	}
	var sessionCookie *http.Cookie
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == "qid" {
			sessionCookie = cookie
		}
	}
	if sessionCookie == nil || !sessionCookie.HttpOnly || sessionCookie.Value == "" {
		t.Fatalf("expected an httpOnly session cookie, got %+v", sessionCookie)
	}

	recorder = env.do(t, http.MethodPost, "/login", "", models.LoginRequest{UsernameOrEmail: "alice", Password: "wrong password"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	recorder = env.do(t, http.MethodPost, "/login", "", models.LoginRequest{UsernameOrEmail: "alice@example.com", Password: "password1"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusOK)
	}
	login := decode[models.UserResponse](t, recorder)
	if login.Token == "" || login.User == nil {
		t.Fatalf("expected token and user, got %+v", login)
	}

	request := httptest.NewRequest(http.MethodGet, "/me", http.NoBody)
	request.AddCookie(sessionCookie)
	recorder = httptest.NewRecorder()
	env.router.ServeHTTP(recorder, request)
	me := decode[struct {
		User *models.User `json:"user"`
	}](t, recorder)
	if me.User == nil || me.User.Username != "alice" {
		t.Fatalf("expected alice from cookie session, got %s", recorder.Body.String())
	}

	recorder = env.do(t, http.MethodGet, "/me", "", nil)
	if recorder.Body.String() != `{"user":null}` {
		t.Fatalf("expected null user for anonymous caller, got %s", recorder.Body.String())
	}
}

func TestChangePasswordWithUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodPost, "/change-password", "", models.ChangePasswordRequest{
		Token: "missing", NewPassword: "new password",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}
	response := decode[models.UserResponse](t, recorder)
	if len(response.Errors) != 1 || response.Errors[0].Message != "Token Expired" {
		t.Fatalf("expected Token Expired, got %+v", response.Errors)
	}
}
