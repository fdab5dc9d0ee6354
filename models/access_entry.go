package models

import "time"

// AccessEntry grants a user a capability mask on a resource and all of its
// descendants.
type AccessEntry struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ResourceID uint       `gorm:"not null;uniqueIndex:idx_access_resource_user" json:"resource_id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_access_resource_user;index" json:"user_id"`
	Mask       AccessMask `gorm:"not null" json:"mask"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (e AccessEntry) Has(flag AccessMask) bool {
	return e.Mask.Has(flag)
}

// PathEntry is an AccessEntry found on a resource's ancestor path, joined with
// the granting resource and the grantee.
type PathEntry struct {
	AccessEntry
	Depth          int          `json:"depth"`
	ResourceName   string       `json:"resource_name"`
	ResourceKind   ResourceKind `json:"resource_kind"`
	ResourceParent *uint        `json:"resource_parent"`
	UserEmail      string       `json:"user_email"`
}
