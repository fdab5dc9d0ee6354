package repositories

import (
	"context"
	"time"

	"teamdrive/models"

	"gorm.io/gorm"
)

type TxManager interface {
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type UserRepository interface {
	Create(ctx context.Context, tx *gorm.DB, user *models.User) error
	GetByID(ctx context.Context, tx *gorm.DB, userID uint) (models.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (models.User, error)
	FindByIDsOrEmails(ctx context.Context, tx *gorm.DB, ids []uint, emails []string) ([]models.User, error)
}

// Usage is a set of signed deltas applied to a team's counters.
type Usage struct {
	Members   int64
	Resources int64
	Storage   int64
}

func (u Usage) IsZero() bool {
	return u.Members == 0 && u.Resources == 0 && u.Storage == 0
}

type TeamRepository interface {
	Create(ctx context.Context, tx *gorm.DB, team *models.Team) error
	GetByID(ctx context.Context, tx *gorm.DB, teamID uint) (models.Team, error)
	// GetByResource walks from resourceID to its root and returns the team
	// owning that root.
	GetByResource(ctx context.Context, tx *gorm.DB, resourceID uint) (models.Team, error)
	ApplyUsage(ctx context.Context, tx *gorm.DB, teamID uint, delta Usage) error
}

type MembershipRepository interface {
	Create(ctx context.Context, tx *gorm.DB, membership *models.Membership) error
	Get(ctx context.Context, tx *gorm.DB, teamID uint, userID uint) (models.Membership, error)
	// ResolveForResource returns userID's membership in the team owning the
	// tree that contains resourceID, with Team preloaded.
	ResolveForResource(ctx context.Context, tx *gorm.DB, resourceID uint, userID uint) (models.Membership, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uint) ([]models.Membership, error)
	ListByUsersInTeam(ctx context.Context, tx *gorm.DB, teamID uint, userIDs []uint) ([]models.Membership, error)
	UpdateMask(ctx context.Context, tx *gorm.DB, membershipID uint, mask models.TeamMask) error
	Delete(ctx context.Context, tx *gorm.DB, membershipID uint) error
	CountWithMask(ctx context.Context, tx *gorm.DB, teamID uint, mask models.TeamMask) (int64, error)
}

type ListChildrenInput struct {
	ParentID uint
	Cursor   uint
	Limit    int
}

type ListSharedInput struct {
	UserID uint
	Cursor uint
	Limit  int
}

// SubtreeNode is a resource and its distance from the subtree root.
type SubtreeNode struct {
	models.Resource
	Depth int
}

type ResourceRepository interface {
	Create(ctx context.Context, tx *gorm.DB, resource *models.Resource) error
	GetByID(ctx context.Context, tx *gorm.DB, resourceID uint) (models.Resource, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, resourceIDs []uint) ([]models.Resource, error)
	FindChild(ctx context.Context, tx *gorm.DB, parentID uint, name string) (models.Resource, error)
	ListChildren(ctx context.Context, tx *gorm.DB, in ListChildrenInput) ([]models.Resource, error)
	// ListShared returns resources carrying a READ entry for the user.
	ListShared(ctx context.Context, tx *gorm.DB, in ListSharedInput) ([]models.Resource, error)
	// Ancestors returns the ids from resourceID up to its root, closest first.
	Ancestors(ctx context.Context, tx *gorm.DB, resourceID uint) ([]uint, error)
	// Subtree returns rootID and all its descendants in breadth-first order.
	Subtree(ctx context.Context, tx *gorm.DB, rootID uint) ([]SubtreeNode, error)
	UpdateByID(ctx context.Context, tx *gorm.DB, resourceID uint, updates map[string]interface{}) error
	DeleteByIDs(ctx context.Context, tx *gorm.DB, resourceIDs []uint) error
}

type AccessEntryRepository interface {
	// ListOnPath returns the entries on resourceID and all of its ancestors,
	// closest first then by entry id. A nil userID returns every user.
	ListOnPath(ctx context.Context, tx *gorm.DB, resourceID uint, userID *uint) ([]models.PathEntry, error)
	ListByResource(ctx context.Context, tx *gorm.DB, resourceID uint) ([]models.AccessEntry, error)
	Create(ctx context.Context, tx *gorm.DB, entry *models.AccessEntry) error
	UpdateMask(ctx context.Context, tx *gorm.DB, entryID uint, mask models.AccessMask) error
	DeleteByIDs(ctx context.Context, tx *gorm.DB, entryIDs []uint) error
	DeleteByResourceIDs(ctx context.Context, tx *gorm.DB, resourceIDs []uint) error
	// DeleteByUserInTeam removes every entry userID holds on the tree rooted
	// at rootID.
	DeleteByUserInTeam(ctx context.Context, tx *gorm.DB, userID uint, rootID uint) error
}

type BackingObjectRepository interface {
	Create(ctx context.Context, tx *gorm.DB, object *models.BackingObject) error
	GetByID(ctx context.Context, tx *gorm.DB, objectID uint) (models.BackingObject, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, objectIDs []uint) ([]models.BackingObject, error)
	ListLinked(ctx context.Context, tx *gorm.DB, resourceID uint) ([]models.BackingObject, error)
	// Link references objectIDs from resourceID, incrementing their counts.
	Link(ctx context.Context, tx *gorm.DB, resourceID uint, objectIDs []uint) error
	// Unlink drops every link held by resourceIDs and returns the objects
	// whose count reached zero as a result.
	Unlink(ctx context.Context, tx *gorm.DB, resourceIDs []uint) ([]models.BackingObject, error)
	ListUnreferenced(ctx context.Context, tx *gorm.DB, limit int) ([]models.BackingObject, error)
	DeleteByID(ctx context.Context, tx *gorm.DB, objectID uint) error
}

type UploadSessionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, session *models.UploadSession) error
	GetByID(ctx context.Context, tx *gorm.DB, sessionID string) (models.UploadSession, error)
	// Transition moves a session to status when it is currently in one of
	// from. It reports whether the row changed.
	Transition(ctx context.Context, tx *gorm.DB, sessionID string, from []models.UploadStatus, to models.UploadStatus) (bool, error)
	ListExpired(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]models.UploadSession, error)
}

type ThumbnailTaskRepository interface {
	Create(ctx context.Context, tx *gorm.DB, task *models.ThumbnailTask) error
	ListPending(ctx context.Context, tx *gorm.DB, limit int) ([]models.ThumbnailTask, error)
	MarkDone(ctx context.Context, tx *gorm.DB, taskID uint, now time.Time) error
	MarkFailed(ctx context.Context, tx *gorm.DB, taskID uint, message string) error
}

// CommitLockRepository serializes commits of the same upload session across
// processes.
type CommitLockRepository interface {
	Acquire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, sessionID string) error
}

type Container struct {
	TxManager      TxManager
	Users          UserRepository
	Teams          TeamRepository
	Memberships    MembershipRepository
	Resources      ResourceRepository
	AccessEntries  AccessEntryRepository
	Objects        BackingObjectRepository
	UploadSessions UploadSessionRepository
	Thumbnails     ThumbnailTaskRepository
	CommitLocks    CommitLockRepository
}
