package repositories

import (
	"context"
	"time"

	"teamdrive/models"

	"gorm.io/gorm"
)

type GormThumbnailTaskRepository struct {
	db *gorm.DB
}

func NewGormThumbnailTaskRepository(db *gorm.DB) *GormThumbnailTaskRepository {
	return &GormThumbnailTaskRepository{db: db}
}

func (r *GormThumbnailTaskRepository) Create(_ context.Context, tx *gorm.DB, task *models.ThumbnailTask) error {
	return useTx(r.db, tx).Create(task).Error
}

func (r *GormThumbnailTaskRepository) ListPending(_ context.Context, tx *gorm.DB, limit int) ([]models.ThumbnailTask, error) {
	var tasks []models.ThumbnailTask
	err := useTx(r.db, tx).
		Where("status = ? AND retry_count < max_retries", models.TaskPending).
		Order("id ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *GormThumbnailTaskRepository) MarkDone(_ context.Context, tx *gorm.DB, taskID uint, now time.Time) error {
	return useTx(r.db, tx).Model(&models.ThumbnailTask{}).Where("id = ?", taskID).Updates(map[string]interface{}{
		"status":       models.TaskDone,
		"completed_at": now,
	}).Error
}

// MarkFailed records the failure and gives the task up once it has used all
// of its retries.
func (r *GormThumbnailTaskRepository) MarkFailed(_ context.Context, tx *gorm.DB, taskID uint, message string) error {
	return useTx(r.db, tx).Model(&models.ThumbnailTask{}).Where("id = ?", taskID).Updates(map[string]interface{}{
		"retry_count":   gorm.Expr("retry_count + 1"),
		"error_message": message,
		"status":        gorm.Expr("CASE WHEN retry_count + 1 >= max_retries THEN ? ELSE ? END", models.TaskFailed, models.TaskPending),
	}).Error
}
