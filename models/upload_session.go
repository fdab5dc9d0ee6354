package models

import "time"

type UploadStatus string

const (
	UploadInitiated       UploadStatus = "INITIATED"
	UploadCommitRequested UploadStatus = "COMMIT_REQUESTED"
	UploadCommitted       UploadStatus = "COMMITTED"
	UploadRejected        UploadStatus = "REJECTED"
	UploadExpired         UploadStatus = "EXPIRED"
)

func (s UploadStatus) Terminal() bool {
	return s == UploadCommitted || s == UploadRejected || s == UploadExpired
}

// UploadSession tracks one multipart upload from init to commit. The row
// holds the resource slot reserved against the team quota until it reaches
// a terminal status.
type UploadSession struct {
	ID               string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           uint         `gorm:"not null;index" json:"user_id"`
	TeamID           uint         `gorm:"not null;index" json:"team_id"`
	TargetID         uint         `gorm:"not null" json:"target_id"`
	Name             string       `gorm:"type:varchar(200)" json:"name"`
	Size             int64        `gorm:"not null" json:"size"`
	Bucket           string       `gorm:"type:varchar(100);not null" json:"bucket"`
	Key              string       `gorm:"type:varchar(200);not null" json:"key"`
	ExternalUploadID string       `gorm:"type:varchar(255);not null" json:"-"`
	PartSize         int64        `gorm:"not null" json:"part_size"`
	PartCount        int          `gorm:"not null" json:"part_count"`
	Status           UploadStatus `gorm:"type:varchar(20);default:INITIATED;index" json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	ExpiresAt        time.Time    `gorm:"not null;index" json:"expires_at"`
}
