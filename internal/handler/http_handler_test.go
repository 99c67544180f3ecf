package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-feed/internal/cache"
	"github.com/weiawesome/wes-io-feed/internal/digest"
	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/internal/notifier"
	"github.com/weiawesome/wes-io-feed/internal/repository"
	"github.com/weiawesome/wes-io-feed/internal/service"
	"github.com/weiawesome/wes-io-feed/internal/store"
	"github.com/weiawesome/wes-io-feed/internal/token"
	"github.com/weiawesome/wes-io-feed/pkg/database"
	"github.com/weiawesome/wes-io-feed/pkg/jwt"
	"github.com/weiawesome/wes-io-feed/pkg/middleware"
	"github.com/weiawesome/wes-io-feed/pkg/response"
	"github.com/weiawesome/wes-io-feed/pkg/storage"
)

type tokenNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *tokenNotifier) SendActivation(_ context.Context, a domain.Account, tok string) {
	n.put("activation:"+a.Email, tok)
}

func (n *tokenNotifier) SendPasswordReset(_ context.Context, a domain.Account, tok string) {
	n.put("reset:"+a.Email, tok)
}

func (n *tokenNotifier) put(k, v string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[k] = v
}

func (n *tokenNotifier) get(k string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[k]
}

type testServer struct {
	t        *testing.T
	router   *gin.Engine
	notifier *tokenNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db,
		&domain.AccountModel{}, &domain.RelationshipModel{}, &domain.PostModel{}))
	t.Cleanup(func() { _ = database.Close(db) })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	pictures, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir(), PublicURL: "/media"})
	require.NoError(t, err)

	accountRepo := repository.NewGormAccountRepository(db)
	relationRepo := repository.NewGormRelationshipRepository(db)
	postRepo := repository.NewGormPostRepository(db)
	counters := store.NewRedisFollowStore(client, "graph")
	tokens := &tokenNotifier{tokens: map[string]string{}}

	accounts := service.NewAccountService(service.AccountDeps{
		Accounts:  accountRepo,
		Relations: relationRepo,
		Cache:     cache.NewRedisAccountCache(client, "account"),
		Counters:  counters,
		Pictures:  pictures,
		Creds:     domain.Credentials{Hasher: digest.New(true), NewToken: token.New},
		Notifier:  tokens,
	})
	graph := service.NewGraphService(accountRepo, relationRepo, counters, service.GraphOptions{})
	feed := service.NewFeedService(postRepo, pictures, 30)

	jwtManager, err := jwt.NewManager("test-secret", time.Hour, "test")
	require.NoError(t, err)

	router := gin.New()
	NewHandler(accounts, graph, feed, jwtManager, middleware.NewAuthMiddleware(jwtManager), Options{}).
		RegisterRoutes(router)

	return &testServer{t: t, router: router, notifier: tokens}
}

type envelope struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data"`
	Error   response.ErrorInfo `json:"error"`
}

func (s *testServer) do(method, path, bearer string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return s.serve(req)
}

func (s *testServer) serve(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// signup registers and activates an account and returns its session.
func (s *testServer) signup(name, email string) domain.SessionResponse {
	s.t.Helper()

	w, _ := s.do(http.MethodPost, "/api/v1/accounts", "", gin.H{"name": name, "email": email, "password": "foobar"})
	require.Equal(s.t, http.StatusCreated, w.Code)

	var tok string
	require.Eventually(s.t, func() bool {
		tok = s.notifier.get("activation:" + email)
		return tok != ""
	}, time.Second, 5*time.Millisecond)

	w, env := s.do(http.MethodPost, "/api/v1/accounts/activate", "", gin.H{"email": email, "token": tok})
	require.Equal(s.t, http.StatusOK, w.Code)
	return decode[domain.SessionResponse](s.t, env.Data)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/v1/accounts", "", gin.H{"name": "", "email": "user@invalid", "password": "foo"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "name")
	assert.Contains(t, env.Error.Fields, "email")
	assert.Contains(t, env.Error.Fields, "password")

	w, env = s.do(http.MethodPost, "/api/v1/accounts", "", gin.H{
		"name": "A", "email": "a@example.com", "password": "foobar", "password_confirmation": "foobaz",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "doesn't match Password", env.Error.Fields["password_confirmation"])

	s.signup("A", "a@example.com")
	w, _ = s.do(http.MethodPost, "/api/v1/accounts", "", gin.H{"name": "B", "email": "A@example.com", "password": "foobar"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestActivationAndLogin(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodPost, "/api/v1/accounts", "", gin.H{"name": "A", "email": "a@example.com", "password": "foobar"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/sessions", "", gin.H{"email": "a@example.com", "password": "foobar"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/accounts/activate", "", gin.H{"email": "a@example.com", "token": "wrong"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var tok string
	require.Eventually(t, func() bool {
		tok = s.notifier.get("activation:a@example.com")
		return tok != ""
	}, time.Second, 5*time.Millisecond)

	w, env := s.do(http.MethodPost, "/api/v1/accounts/activate", "", gin.H{"email": "a@example.com", "token": tok})
	require.Equal(t, http.StatusOK, w.Code)
	session := decode[domain.SessionResponse](t, env.Data)
	assert.True(t, session.Account.Activated)
	assert.NotEmpty(t, session.AccessToken)

	w, _ = s.do(http.MethodPost, "/api/v1/sessions", "", gin.H{"email": "a@example.com", "password": "wrong!"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(http.MethodPost, "/api/v1/sessions", "", gin.H{"email": "a@example.com", "password": "foobar", "remember_me": true})
	require.Equal(t, http.StatusOK, w.Code)
	session = decode[domain.SessionResponse](t, env.Data)
	require.NotEmpty(t, session.RememberToken)

	var cookies []string
	for _, ck := range w.Result().Cookies() {
		cookies = append(cookies, ck.Name)
		assert.True(t, ck.HttpOnly)
	}
	assert.ElementsMatch(t, []string{cookieAccountID, cookieRememberToken}, cookies)

	w, _ = s.do(http.MethodPost, "/api/v1/sessions/remember", "", gin.H{
		"account_id": session.Account.ID, "remember_token": session.RememberToken,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodDelete, "/api/v1/sessions", session.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/sessions/remember", "", gin.H{
		"account_id": session.Account.ID, "remember_token": session.RememberToken,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Logging out revoked the access token.
	w, _ = s.do(http.MethodPatch, "/api/v1/accounts/me", session.AccessToken, gin.H{"name": "B"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t)
	s.signup("A", "a@example.com")

	w, _ := s.do(http.MethodPost, "/api/v1/password_resets", "", gin.H{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/password_resets", "", gin.H{"email": "a@example.com"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var tok string
	require.Eventually(t, func() bool {
		tok = s.notifier.get("reset:a@example.com")
		return tok != ""
	}, time.Second, 5*time.Millisecond)

	w, _ = s.do(http.MethodPut, "/api/v1/password_resets", "", gin.H{"email": "a@example.com", "token": tok, "password": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, env := s.do(http.MethodPut, "/api/v1/password_resets", "", gin.H{
		"email": "a@example.com", "token": tok, "password": "newpass", "password_confirmation": "oldpass",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Error.Fields, "password_confirmation")

	w, _ = s.do(http.MethodPut, "/api/v1/password_resets", "", gin.H{"email": "a@example.com", "token": tok, "password": "newpass"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/sessions", "", gin.H{"email": "a@example.com", "password": "newpass"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEmailLinks(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodPost, "/api/v1/accounts", "", gin.H{"name": "A", "email": "a@example.com", "password": "foobar"})
	require.Equal(t, http.StatusCreated, w.Code)

	var tok string
	require.Eventually(t, func() bool {
		tok = s.notifier.get("activation:a@example.com")
		return tok != ""
	}, time.Second, 5*time.Millisecond)

	link := func(path, token string) string {
		return path + "?" + url.Values{"email": {"a@example.com"}, "token": {token}}.Encode()
	}

	w, _ = s.do(http.MethodGet, link(notifier.ActivationPath, "wrong"), "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, env := s.do(http.MethodGet, link(notifier.ActivationPath, tok), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.SessionResponse](t, env.Data).Account.Activated)

	w, _ = s.do(http.MethodPost, "/api/v1/password_resets", "", gin.H{"email": "a@example.com"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		tok = s.notifier.get("reset:a@example.com")
		return tok != ""
	}, time.Second, 5*time.Millisecond)

	w, _ = s.do(http.MethodGet, link(notifier.PasswordResetPath, "wrong"), "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(http.MethodGet, notifier.PasswordResetPath, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(http.MethodGet, link(notifier.PasswordResetPath, tok), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Checking the link does not use it up.
	w, _ = s.do(http.MethodPut, "/api/v1/password_resets", "", gin.H{"email": "a@example.com", "token": tok, "password": "newpass"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProfileUpdate(t *testing.T) {
	s := newTestServer(t)
	a := s.signup("A", "a@example.com")

	w, _ := s.do(http.MethodPatch, "/api/v1/accounts/me", "", gin.H{"name": "B"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.do(http.MethodPatch, "/api/v1/accounts/me", a.AccessToken, gin.H{"name": "Renamed", "password": ""})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", decode[domain.AccountProfile](t, env.Data).Name)

	w, env = s.do(http.MethodGet, "/api/v1/accounts/"+a.Account.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", decode[domain.AccountProfile](t, env.Data).Name)

	w, _ = s.do(http.MethodGet, "/api/v1/accounts/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFollowAndFeed(t *testing.T) {
	s := newTestServer(t)
	a := s.signup("A", "a@example.com")
	b := s.signup("B", "b@example.com")

	w, _ := s.do(http.MethodPost, "/api/v1/accounts/"+b.Account.ID+"/follow", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.do(http.MethodPost, "/api/v1/accounts/"+b.Account.ID+"/follow", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.FollowResponse](t, env.Data).Changed)

	w, env = s.do(http.MethodPost, "/api/v1/accounts/"+b.Account.ID+"/follow", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[domain.FollowResponse](t, env.Data).Changed)

	w, _ = s.do(http.MethodPost, "/api/v1/accounts/missing/follow", a.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(http.MethodGet, "/api/v1/accounts/"+b.Account.ID+"/followers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{a.Account.ID}, decode[domain.IDListResponse](t, env.Data).AccountIDs)

	w, env = s.do(http.MethodGet, "/api/v1/accounts/"+a.Account.ID+"/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[domain.FollowStats](t, env.Data)
	assert.EqualValues(t, 1, stats.Following)
	assert.EqualValues(t, 0, stats.Followers)

	w, env = s.do(http.MethodPost, "/api/v1/accounts/"+a.Account.ID+"/following/status", "",
		gin.H{"account_ids": []string{b.Account.ID, "other"}})
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[domain.FollowStatusResponse](t, env.Data)
	assert.True(t, status.Following[b.Account.ID])
	assert.False(t, status.Following["other"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/"+a.Account.ID+"/following/status", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w, _ = s.serve(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/posts", b.AccessToken, gin.H{"content": "from b"})
	require.Equal(t, http.StatusCreated, w.Code)
	w, env = s.do(http.MethodPost, "/api/v1/posts", a.AccessToken, gin.H{"content": "from a"})
	require.Equal(t, http.StatusCreated, w.Code)
	aPost := decode[domain.Post](t, env.Data)

	w, _ = s.do(http.MethodPost, "/api/v1/posts", a.AccessToken, gin.H{"content": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, env = s.do(http.MethodGet, "/api/v1/feed", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[domain.FeedPage](t, env.Data)
	require.Len(t, page.Posts, 2)

	w, env = s.do(http.MethodGet, "/api/v1/feed?limit=1", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[domain.FeedPage](t, env.Data)
	require.Len(t, page.Posts, 1)
	require.True(t, page.HasMore)

	w, env = s.do(http.MethodGet, "/api/v1/feed?limit=1&cursor="+page.NextCursor, a.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[domain.FeedPage](t, env.Data)
	require.Len(t, page.Posts, 1)
	assert.False(t, page.HasMore)

	w, _ = s.do(http.MethodGet, "/api/v1/feed?limit=zero", a.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, env = s.do(http.MethodGet, "/api/v1/feed?cursor=bm9wZQ", a.AccessToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Error.Fields, "cursor")

	w, env = s.do(http.MethodGet, "/api/v1/feed", b.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[domain.FeedPage](t, env.Data).Posts, 1)

	w, _ = s.do(http.MethodDelete, "/api/v1/posts/"+aPost.ID, b.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodDelete, "/api/v1/posts/"+aPost.ID, a.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env = s.do(http.MethodDelete, "/api/v1/accounts/"+b.Account.ID+"/follow", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.FollowResponse](t, env.Data).Changed)

	w, env = s.do(http.MethodGet, "/api/v1/accounts/"+b.Account.ID+"/posts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[domain.FeedPage](t, env.Data).Posts, 1)
}

func TestCreatePostWithPicture(t *testing.T) {
	s := newTestServer(t)
	a := s.signup("A", "a@example.com")

	png := []byte("\x89PNG\r\n\x1a\n" + "rest-of-image")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("content", "look"))
	fw, err := mw.CreateFormFile("picture", "pic.png")
	require.NoError(t, err)
	_, err = fw.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.AccessToken)

	w, env := s.serve(req)
	require.Equal(t, http.StatusCreated, w.Code)
	post := decode[domain.Post](t, env.Data)
	assert.Equal(t, "look", post.Content)
	assert.Contains(t, post.PictureURL, "/media/posts/"+a.Account.ID+"/")
	assert.Contains(t, post.PictureURL, ".png")
}

func TestDeleteAccount(t *testing.T) {
	s := newTestServer(t)
	a := s.signup("A", "a@example.com")

	w, _ := s.do(http.MethodDelete, "/api/v1/accounts/me", a.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/accounts/"+a.Account.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(http.MethodDelete, "/api/v1/accounts/me", a.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
