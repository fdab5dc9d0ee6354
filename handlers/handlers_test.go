package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"teamdrive/config"
	"teamdrive/database"
	"teamdrive/models"
	"teamdrive/objectstore"
	"teamdrive/repositories"
	"teamdrive/services"
	"teamdrive/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// memoryStore accepts every part whose ETag is "etag-<n>".
type memoryStore struct {
	mu      sync.Mutex
	next    int
	objects map[string][]byte
}

func (s *memoryStore) Bucket() string { return "teamdrive" }

func (s *memoryStore) CreateMultipart(context.Context, string, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("upload-%d", s.next), nil
}

func (s *memoryStore) PresignPart(_ context.Context, bucket, key, uploadID string, partNumber int, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://objects.test/%s/%s?partNumber=%d&uploadId=%s", bucket, key, partNumber, uploadID), nil
}

func (s *memoryStore) CompleteMultipart(_ context.Context, bucket, key, _ string, parts []objectstore.CompletedPart) error {
	for _, p := range parts {
		if p.ETag != fmt.Sprintf("etag-%d", p.Number) {
			return objectstore.ErrInvalidPart
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = nil
	return nil
}

func (s *memoryStore) AbortMultipart(context.Context, string, string, string) error { return nil }

func (s *memoryStore) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + bucket + "/" + key, nil
}

func (s *memoryStore) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *memoryStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+key)
	return nil
}

type memoryLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memoryLocks) Acquire(_ context.Context, sessionID string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[sessionID] {
		return false, nil
	}
	l.held[sessionID] = true
	return true, nil
}

func (l *memoryLocks) Release(_ context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, sessionID)
	return nil
}

type apiEnv struct {
	router *gin.Engine
	repos  repositories.Container
	cfg    *config.Config
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Parse([]byte(`
jwt:
  secret: handler-secret
  expire_hours: 1
upload:
  signing_secret: handler-signing-secret
  commit_base_url: https://drive.test
object_store:
  driver: s3
  bucket: teamdrive
metrics:
  enabled: true
`))
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	cfg.Database.Path = fmt.Sprintf("file:api_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))

	db, err := database.Open(&cfg.Database)
	if err != nil {
		t.Fatalf("open database failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	repos := repositories.NewGormRepositories(db, nil, cfg.Tree.MaxDepth).BuildContainer()
	repos.CommitLocks = &memoryLocks{held: map[string]bool{}}

	previous := appServices
	t.Cleanup(func() { SetServices(previous) })
	SetServices(services.NewContainer(repos, &memoryStore{objects: map[string][]byte{}}, cfg))

	router, err := NewRouter(cfg, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	return &apiEnv{router: router, repos: repos, cfg: cfg}
}

func (e *apiEnv) user(t *testing.T, email string) (models.User, string) {
	t.Helper()
	u := models.User{Email: email}
	if err := e.repos.Users.Create(context.Background(), nil, &u); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	token, err := utils.GenerateToken(u.ID, e.cfg.JWT.Secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return u, token
}

func (e *apiEnv) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q failed: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func TestHealthCheckIsPublic(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", "", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodGet, "/api/files", "", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestUploadLifecycleOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	_, alice := env.user(t, "alice@example.com")
	_, bob := env.user(t, "bob@example.com")

	rec := env.do(t, http.MethodPost, "/api/teams", alice, gin.H{"name": "Acme"})
	expectStatus(t, rec, http.StatusCreated)
	var team services.TeamView
	decode(t, rec, &team)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/files/%d", team.Root), alice, gin.H{"name": "F"})
	expectStatus(t, rec, http.StatusCreated)
	var folder models.ResourceSummary
	decode(t, rec, &folder)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/files/%d", folder.ID), alice, gin.H{"name": "hello.txt", "size": 11})
	expectStatus(t, rec, http.StatusAccepted)
	var ticket services.UploadTicket
	decode(t, rec, &ticket)
	if len(ticket.Parts) != 1 || ticket.Parts[0].End != 11 {
		t.Fatalf("unexpected parts %+v", ticket.Parts)
	}

	commit, err := url.Parse(ticket.Commit)
	if err != nil {
		t.Fatalf("parse commit url failed: %v", err)
	}
	tampered := strings.Replace(commit.RequestURI(), "size=11", "size=12", 1)
	rec = env.do(t, http.MethodPost, tampered, alice, gin.H{"parts": []string{"etag-1"}})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(t, http.MethodPost, commit.RequestURI(), alice, gin.H{"parts": []string{"etag-1"}})
	expectStatus(t, rec, http.StatusCreated)
	var file services.ResourceDetail
	decode(t, rec, &file)
	if file.Name != "hello.txt" {
		t.Fatalf("unexpected file %+v", file)
	}

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d", folder.ID), bob, nil)
	expectStatus(t, rec, http.StatusForbidden)
	var body utils.ErrorBody
	decode(t, rec, &body)
	if body.Kind != string(services.KindForbidden) {
		t.Fatalf("unexpected error body %+v", body)
	}

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/teams/%d/usage", team.ID), alice, nil)
	expectStatus(t, rec, http.StatusOK)
	var usage services.TeamUsage
	decode(t, rec, &usage)
	if usage.Storage.Used != 11 || usage.Resources.Used != 3 {
		t.Fatalf("unexpected usage %+v", usage)
	}

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/files/%d", folder.ID), alice, nil)
	expectStatus(t, rec, http.StatusAccepted)
	if rec.Body.String() != `{"detail":"Resource deleted"}` {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d", file.ID), alice, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestMembersOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	_, alice := env.user(t, "alice@example.com")
	bobUser, bob := env.user(t, "bob@example.com")

	rec := env.do(t, http.MethodPost, "/api/teams", alice, gin.H{"name": "Acme", "member_quota": 5})
	expectStatus(t, rec, http.StatusCreated)
	var team services.TeamView
	decode(t, rec, &team)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/files/%d", team.Root), alice, gin.H{"name": "shared"})
	expectStatus(t, rec, http.StatusCreated)
	var shared models.ResourceSummary
	decode(t, rec, &shared)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/files/%d/members", shared.ID), alice, gin.H{"bob@example.com": 1})
	expectStatus(t, rec, http.StatusOK)
	var view map[string]services.Member
	decode(t, rec, &view)
	if _, ok := view[fmt.Sprint(bobUser.ID)]; !ok {
		t.Fatalf("expected bob in members, got %v", view)
	}

	rec = env.do(t, http.MethodGet, "/api/files", bob, nil)
	expectStatus(t, rec, http.StatusOK)
	var page services.Page
	decode(t, rec, &page)
	if len(page.Entries) != 1 || page.Entries[0].ID != shared.ID {
		t.Fatalf("unexpected shared page %+v", page)
	}

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/files/%d/members", shared.ID), alice, gin.H{"nobody": 1})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/teams/%d/members/%d", team.ID, bobUser.ID), bob, gin.H{"mask": 0})
	expectStatus(t, rec, http.StatusForbidden)
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/teams/%d/members/%d", team.ID, bobUser.ID), alice, gin.H{"mask": 0})
	expectStatus(t, rec, http.StatusNoContent)

	rec = env.do(t, http.MethodGet, "/api/teams", bob, nil)
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected bob to have left the team, got %s", rec.Body.String())
	}
}

func TestInvalidIDsAndCursors(t *testing.T) {
	env := newAPIEnv(t)
	_, alice := env.user(t, "alice@example.com")

	expectStatus(t, env.do(t, http.MethodGet, "/api/files/abc", alice, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/files?cursor=x", alice, nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/files/1/commit?session=s", alice, gin.H{}), http.StatusUnauthorized)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.do(t, http.MethodGet, "/api/health", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `teamdrive_api_http_requests_total{method="GET",route="/api/health",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output")
	}
}
