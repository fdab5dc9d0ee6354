package models

import "time"

// BackingObject is a payload stored in the object store. It is shared by
// every resource linked to it and may be removed once RefCount drops to 0.
type BackingObject struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TeamID    uint      `gorm:"not null;index" json:"team_id"`
	Bucket    string    `gorm:"type:varchar(100);not null" json:"bucket"`
	Key       string    `gorm:"type:varchar(200);not null" json:"key"`
	Size      int64     `gorm:"not null" json:"size"`
	RefCount  int       `gorm:"not null;default:0;index" json:"ref_count"`
	CreatedAt time.Time `json:"created_at"`
}

type ResourceObjectLink struct {
	ResourceID uint `gorm:"primaryKey;autoIncrement:false"`
	ObjectID   uint `gorm:"primaryKey;autoIncrement:false;index"`
}
