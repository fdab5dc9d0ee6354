package repositories

import (
	"context"
	"time"

	"teamdrive/models"

	"gorm.io/gorm"
)

type GormUploadSessionRepository struct {
	db *gorm.DB
}

func NewGormUploadSessionRepository(db *gorm.DB) *GormUploadSessionRepository {
	return &GormUploadSessionRepository{db: db}
}

func (r *GormUploadSessionRepository) Create(_ context.Context, tx *gorm.DB, session *models.UploadSession) error {
	return useTx(r.db, tx).Create(session).Error
}

func (r *GormUploadSessionRepository) GetByID(_ context.Context, tx *gorm.DB, sessionID string) (models.UploadSession, error) {
	var session models.UploadSession
	err := useTx(r.db, tx).Where("id = ?", sessionID).First(&session).Error
	return session, err
}

func (r *GormUploadSessionRepository) Transition(_ context.Context, tx *gorm.DB, sessionID string, from []models.UploadStatus, to models.UploadStatus) (bool, error) {
	result := useTx(r.db, tx).Model(&models.UploadSession{}).
		Where("id = ? AND status IN ?", sessionID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormUploadSessionRepository) ListExpired(_ context.Context, tx *gorm.DB, now time.Time, limit int) ([]models.UploadSession, error) {
	var sessions []models.UploadSession
	err := useTx(r.db, tx).
		Where("expires_at < ? AND status IN ?", now, []models.UploadStatus{models.UploadInitiated, models.UploadCommitRequested}).
		Order("expires_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}
