package models

import "time"

type Team struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"type:varchar(200);not null" json:"name"`
	RootResourceID uint      `gorm:"not null;uniqueIndex" json:"root_resource_id"`
	MemberQuota    int64     `gorm:"not null" json:"member_quota"`
	ResourceQuota  int64     `gorm:"not null" json:"resource_quota"`
	StorageQuota   int64     `gorm:"not null" json:"storage_quota"`
	UsedMembers    int64     `gorm:"not null;default:0" json:"used_members"`
	UsedResources  int64     `gorm:"not null;default:1" json:"used_resources"`
	UsedStorage    int64     `gorm:"not null;default:0" json:"used_storage"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Membership struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_membership_user_team" json:"user_id"`
	TeamID    uint      `gorm:"not null;uniqueIndex:idx_membership_user_team;index" json:"team_id"`
	Mask      TeamMask  `gorm:"not null" json:"mask"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
	Team Team `gorm:"foreignKey:TeamID" json:"-"`
}

func (m Membership) Has(flag TeamMask) bool {
	return m.Mask.Has(flag)
}
