package repositories

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type GormTxManager struct {
	db *gorm.DB
}

func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

func (m *GormTxManager) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(fn)
}

type GormRepositories struct {
	db       *gorm.DB
	redis    *redis.Client
	maxDepth int
}

// NewGormRepositories wires the gorm repositories. maxDepth bounds every
// recursive tree query.
func NewGormRepositories(db *gorm.DB, redisClient *redis.Client, maxDepth int) *GormRepositories {
	return &GormRepositories{db: db, redis: redisClient, maxDepth: maxDepth}
}

func (r *GormRepositories) BuildContainer() Container {
	return Container{
		TxManager:      NewGormTxManager(r.db),
		Users:          NewGormUserRepository(r.db),
		Teams:          NewGormTeamRepository(r.db, r.maxDepth),
		Memberships:    NewGormMembershipRepository(r.db, r.maxDepth),
		Resources:      NewGormResourceRepository(r.db, r.maxDepth),
		AccessEntries:  NewGormAccessEntryRepository(r.db, r.maxDepth),
		Objects:        NewGormBackingObjectRepository(r.db),
		UploadSessions: NewGormUploadSessionRepository(r.db),
		Thumbnails:     NewGormThumbnailTaskRepository(r.db),
		CommitLocks:    NewRedisCommitLockRepository(r.redis),
	}
}

func useTx(db *gorm.DB, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

// ancestorsCTE selects id, parent_id and depth for a resource and every
// ancestor. It takes the resource id and the depth bound as arguments.
const ancestorsCTE = `WITH RECURSIVE p (id, parent_id, depth) AS (
	SELECT id, parent_id, 0 FROM resources WHERE id = ?
	UNION ALL
	SELECT r.id, r.parent_id, p.depth + 1 FROM resources r JOIN p ON r.id = p.parent_id
	WHERE p.depth < ?
)`
