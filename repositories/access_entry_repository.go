package repositories

import (
	"context"

	"teamdrive/models"

	"gorm.io/gorm"
)

type GormAccessEntryRepository struct {
	db       *gorm.DB
	maxDepth int
}

func NewGormAccessEntryRepository(db *gorm.DB, maxDepth int) *GormAccessEntryRepository {
	return &GormAccessEntryRepository{db: db, maxDepth: maxDepth}
}

const pathEntriesSelect = `
	SELECT e.id, e.resource_id, e.user_id, e.mask, e.created_at, e.updated_at,
		p.depth, r.name AS resource_name, r.kind AS resource_kind,
		r.parent_id AS resource_parent, u.email AS user_email
	FROM access_entries e
	JOIN p ON e.resource_id = p.id
	JOIN resources r ON r.id = p.id
	JOIN users u ON u.id = e.user_id`

func (r *GormAccessEntryRepository) ListOnPath(_ context.Context, tx *gorm.DB, resourceID uint, userID *uint) ([]models.PathEntry, error) {
	var entries []models.PathEntry
	db := useTx(r.db, tx)
	var err error
	if userID != nil {
		err = db.Raw(ancestorsCTE+pathEntriesSelect+`
			WHERE e.user_id = ?
			ORDER BY p.depth ASC, e.id ASC`, resourceID, r.maxDepth, *userID).Scan(&entries).Error
	} else {
		err = db.Raw(ancestorsCTE+pathEntriesSelect+`
			ORDER BY p.depth ASC, e.id ASC`, resourceID, r.maxDepth).Scan(&entries).Error
	}
	return entries, err
}

func (r *GormAccessEntryRepository) ListByResource(_ context.Context, tx *gorm.DB, resourceID uint) ([]models.AccessEntry, error) {
	var entries []models.AccessEntry
	err := useTx(r.db, tx).Where("resource_id = ?", resourceID).Order("id ASC").Find(&entries).Error
	return entries, err
}

func (r *GormAccessEntryRepository) Create(_ context.Context, tx *gorm.DB, entry *models.AccessEntry) error {
	return useTx(r.db, tx).Create(entry).Error
}

func (r *GormAccessEntryRepository) UpdateMask(_ context.Context, tx *gorm.DB, entryID uint, mask models.AccessMask) error {
	return useTx(r.db, tx).Model(&models.AccessEntry{}).Where("id = ?", entryID).Update("mask", mask).Error
}

func (r *GormAccessEntryRepository) DeleteByIDs(_ context.Context, tx *gorm.DB, entryIDs []uint) error {
	if len(entryIDs) == 0 {
		return nil
	}
	return useTx(r.db, tx).Where("id IN ?", entryIDs).Delete(&models.AccessEntry{}).Error
}

func (r *GormAccessEntryRepository) DeleteByResourceIDs(_ context.Context, tx *gorm.DB, resourceIDs []uint) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	return useTx(r.db, tx).Where("resource_id IN ?", resourceIDs).Delete(&models.AccessEntry{}).Error
}

func (r *GormAccessEntryRepository) DeleteByUserInTeam(_ context.Context, tx *gorm.DB, userID uint, rootID uint) error {
	return useTx(r.db, tx).Exec(`WITH RECURSIVE s (id, depth) AS (
			SELECT id, 0 FROM resources WHERE id = ?
			UNION ALL
			SELECT r.id, s.depth + 1 FROM resources r JOIN s ON r.parent_id = s.id
			WHERE s.depth < ?
		)
		DELETE FROM access_entries WHERE user_id = ? AND resource_id IN (SELECT id FROM s)`,
		rootID, r.maxDepth, userID).Error
}
