package services

import (
	"context"
	"errors"
	"time"

	"teamdrive/logger"
	"teamdrive/objectstore"
	"teamdrive/repositories"
)

type CleanupService interface {
	// ExpireSessions closes open upload sessions past their deadline.
	ExpireSessions(ctx context.Context) (int, error)
	// CollectObjects removes backing objects nothing links to any more.
	CollectObjects(ctx context.Context) (int, error)
	RunOnce(ctx context.Context) (CleanupReport, error)
}

type CleanupReport struct {
	ExpiredSessions  int
	CollectedObjects int
}

type cleanupService struct {
	sessions  repositories.UploadSessionRepository
	objects   repositories.BackingObjectRepository
	resources ResourceService
	store     objectstore.Store
	batchSize int
	now       func() time.Time
}

func NewCleanupService(repos repositories.Container, resources ResourceService, store objectstore.Store, batchSize int) CleanupService {
	return &cleanupService{
		sessions:  repos.UploadSessions,
		objects:   repos.Objects,
		resources: resources,
		store:     store,
		batchSize: batchSize,
		now:       time.Now,
	}
}

var defaultCleanupService CleanupService

// SetCleanupService registers the service driven by StartCleanupWorkers.
func SetCleanupService(svc CleanupService) {
	defaultCleanupService = svc
}

// StartCleanupWorkers runs the registered cleanup service every interval
// until ctx is done. It does nothing when no service is registered.
func StartCleanupWorkers(ctx context.Context, interval time.Duration) {
	svc := defaultCleanupService
	if svc == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := svc.RunOnce(ctx); err != nil {
					logger.Error("cleanup pass failed", "error", err)
				}
			}
		}
	}()
}

func (s *cleanupService) RunOnce(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport
	expired, errExpire := s.ExpireSessions(ctx)
	report.ExpiredSessions = expired
	collected, errCollect := s.CollectObjects(ctx)
	report.CollectedObjects = collected

	if report.ExpiredSessions > 0 || report.CollectedObjects > 0 {
		logger.Info("cleanup pass finished", "expired_sessions", report.ExpiredSessions, "collected_objects", report.CollectedObjects)
	}
	return report, errors.Join(errExpire, errCollect)
}

func (s *cleanupService) ExpireSessions(ctx context.Context) (int, error) {
	sessions, err := s.sessions.ListExpired(ctx, nil, s.now(), s.batchSize)
	if err != nil {
		return 0, err
	}
	for _, session := range sessions {
		s.resources.ExpireSession(ctx, session)
		logger.Debug("expired upload session", "session", session.ID, "team", session.TeamID)
	}
	return len(sessions), nil
}

// CollectObjects deletes the payload first so that a failed store call
// leaves the row behind for the next pass.
func (s *cleanupService) CollectObjects(ctx context.Context) (int, error) {
	objects, err := s.objects.ListUnreferenced(ctx, nil, s.batchSize)
	if err != nil {
		return 0, err
	}

	collected := 0
	for _, obj := range objects {
		err := s.store.Delete(ctx, obj.Bucket, obj.Key)
		if err != nil && !errors.Is(err, objectstore.ErrNotFound) {
			logger.Warn("failed to delete object payload", "object", obj.ID, "key", obj.Key, "error", err)
			continue
		}
		if err := s.objects.DeleteByID(ctx, nil, obj.ID); err != nil {
			logger.Warn("failed to delete object row", "object", obj.ID, "error", err)
			continue
		}
		collected++
	}
	return collected, nil
}
