package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"teamdrive/config"
	"teamdrive/database"
	"teamdrive/models"
	"teamdrive/objectstore"
	"teamdrive/repositories"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeStore struct {
	mu          sync.Mutex
	bucket      string
	next        int
	uploads     map[string]string
	types       map[string]string
	objects     map[string][]byte
	aborted     []string
	deleted     []string
	completeErr error
	presignErr  error
	deleteErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bucket:  "teamdrive",
		uploads: map[string]string{},
		types:   map[string]string{},
		objects: map[string][]byte{},
	}
}

func (s *fakeStore) Bucket() string { return s.bucket }

func (s *fakeStore) CreateMultipart(_ context.Context, _ string, key, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("upload-%d", s.next)
	s.uploads[id] = key
	s.types[id] = contentType
	return id, nil
}

func (s *fakeStore) PresignPart(_ context.Context, bucket, key, uploadID string, partNumber int, _ time.Duration) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	return fmt.Sprintf("https://objects.test/%s/%s?partNumber=%d&uploadId=%s", bucket, key, partNumber, uploadID), nil
}

// CompleteMultipart accepts part n when its ETag is "etag-n".
func (s *fakeStore) CompleteMultipart(_ context.Context, bucket, key, uploadID string, parts []objectstore.CompletedPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	if _, ok := s.uploads[uploadID]; !ok {
		return objectstore.ErrSessionExpired
	}
	for _, p := range parts {
		if p.ETag != fmt.Sprintf("etag-%d", p.Number) {
			return fmt.Errorf("%w: part %d", objectstore.ErrInvalidPart, p.Number)
		}
	}
	delete(s.uploads, uploadID)
	s.objects[bucket+"/"+key] = []byte{}
	return nil
}

func (s *fakeStore) AbortMultipart(_ context.Context, _, _, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = append(s.aborted, uploadID)
	delete(s.uploads, uploadID)
	return nil
}

func (s *fakeStore) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + bucket + "/" + key, nil
}

func (s *fakeStore) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *fakeStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, key)
	delete(s.objects, bucket+"/"+key)
	return nil
}

type fakeCommitLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeCommitLocks() *fakeCommitLocks {
	return &fakeCommitLocks{held: map[string]bool{}}
}

func (l *fakeCommitLocks) Acquire(_ context.Context, sessionID string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[sessionID] {
		return false, nil
	}
	l.held[sessionID] = true
	return true, nil
}

func (l *fakeCommitLocks) Release(_ context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, sessionID)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{Secret: "test-jwt-secret", ExpireHours: 24},
		ObjectStore: config.ObjectStoreConfig{
			Bucket:            "teamdrive",
			MinPartSize:       6 << 20,
			MaxParts:          10000,
			PresignTTLSeconds: 3600,
		},
		Upload: config.UploadConfig{
			SigningSecret:        "test-signing-secret",
			CommitBaseURL:        "https://drive.test",
			SessionTTLSeconds:    3600,
			CommitLockTTLSeconds: 60,
		},
		Quota: config.QuotaConfig{
			OvercommitMargin:     0.1,
			DefaultMemberQuota:   5,
			DefaultResourceQuota: 100,
			DefaultStorageQuota:  1_000_000_000,
		},
		Pagination: config.PaginationConfig{PageSize: 2},
		Tree:       config.TreeConfig{MaxDepth: 64},
		Thumbnail:  config.ThumbnailConfig{Width: 64, Height: 64, Quality: 80, BatchSize: 10, RetryMax: 3},
		Cleanup:    config.CleanupConfig{BatchSize: 50},
	}
}

type testEnv struct {
	ctx   context.Context
	db    *gorm.DB
	repos repositories.Container
	store *fakeStore
	locks *fakeCommitLocks
	svc   *Container
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	repos := repositories.NewGormRepositories(db, nil, cfg.Tree.MaxDepth).BuildContainer()
	locks := newFakeCommitLocks()
	repos.CommitLocks = locks
	store := newFakeStore()

	previousCleanup, previousThumbnails := defaultCleanupService, defaultThumbnailService
	t.Cleanup(func() {
		SetCleanupService(previousCleanup)
		SetThumbnailService(previousThumbnails)
	})

	return &testEnv{
		ctx:   context.Background(),
		db:    db,
		repos: repos,
		store: store,
		locks: locks,
		svc:   NewContainer(repos, store, cfg),
	}
}

func (e *testEnv) resources() *resourceService {
	return e.svc.Resources.(*resourceService)
}

func (e *testEnv) user(t *testing.T, email string) models.User {
	t.Helper()
	u := models.User{Email: email}
	require.NoError(t, e.repos.Users.Create(e.ctx, nil, &u))
	return u
}

func (e *testEnv) createTeam(t *testing.T, ownerID uint, in CreateTeamInput) TeamView {
	t.Helper()
	team, err := e.svc.Teams.CreateTeam(e.ctx, ownerID, in)
	require.NoError(t, err)
	return team
}

// join adds userID to the team with an explicit mask, bypassing invitation.
func (e *testEnv) join(t *testing.T, teamID, userID uint, mask models.TeamMask) {
	t.Helper()
	m := models.Membership{TeamID: teamID, UserID: userID, Mask: mask}
	require.NoError(t, e.repos.Memberships.Create(e.ctx, nil, &m))
	require.NoError(t, e.repos.Teams.ApplyUsage(e.ctx, nil, teamID, repositories.Usage{Members: 1}))
}

func (e *testEnv) grant(t *testing.T, resourceID, userID uint, mask models.AccessMask) {
	t.Helper()
	entry := models.AccessEntry{ResourceID: resourceID, UserID: userID, Mask: mask}
	require.NoError(t, e.repos.AccessEntries.Create(e.ctx, nil, &entry))
}

func (e *testEnv) teamRow(t *testing.T, teamID uint) models.Team {
	t.Helper()
	team, err := e.repos.Teams.GetByID(e.ctx, nil, teamID)
	require.NoError(t, err)
	return team
}

func (e *testEnv) mkdir(t *testing.T, userID, parentID uint, name string) models.ResourceSummary {
	t.Helper()
	res, err := e.svc.Resources.Update(e.ctx, parentID, userID, UpdateInput{Name: name})
	require.NoError(t, err)
	require.Equal(t, 201, res.Status)
	return res.Body.(models.ResourceSummary)
}

func (e *testEnv) startUpload(t *testing.T, userID, targetID uint, name string, size int64) UploadTicket {
	t.Helper()
	res, err := e.svc.Resources.Update(e.ctx, targetID, userID, UpdateInput{Name: name, Size: &size})
	require.NoError(t, err)
	require.Equal(t, 202, res.Status)
	return res.Body.(UploadTicket)
}

// upload runs a complete single-user upload of name into targetID.
func (e *testEnv) upload(t *testing.T, userID, targetID uint, name string, size int64) ResourceDetail {
	t.Helper()
	ticket := e.startUpload(t, userID, targetID, name, size)
	id, params := parseCommitURL(t, ticket.Commit)
	detail, err := e.svc.Resources.Commit(e.ctx, id, userID, params, CommitInput{Parts: etags(len(ticket.Parts))})
	require.NoError(t, err)
	return detail
}

func etags(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("etag-%d", i+1)
	}
	return out
}

func parseCommitURL(t *testing.T, raw string) (uint, CommitParams) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)

	var id uint
	_, err = fmt.Sscanf(u.Path, "/api/files/%d/commit", &id)
	require.NoError(t, err)

	q := u.Query()
	folder, err := strconv.ParseUint(q.Get("folder"), 10, 64)
	require.NoError(t, err)
	size, err := strconv.ParseInt(q.Get("size"), 10, 64)
	require.NoError(t, err)
	return id, CommitParams{
		SessionID: q.Get("session"),
		FolderID:  uint(folder),
		Name:      q.Get("name"),
		Size:      size,
		Signature: q.Get("signature"),
	}
}

func requireAppError(t *testing.T, err error, code int) *AppError {
	t.Helper()
	var appErr *AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	require.Equal(t, code, appErr.HTTPCode, "unexpected status for %v", appErr)
	return appErr
}
