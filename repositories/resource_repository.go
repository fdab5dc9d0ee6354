package repositories

import (
	"context"

	"teamdrive/models"

	"gorm.io/gorm"
)

type GormResourceRepository struct {
	db       *gorm.DB
	maxDepth int
}

func NewGormResourceRepository(db *gorm.DB, maxDepth int) *GormResourceRepository {
	return &GormResourceRepository{db: db, maxDepth: maxDepth}
}

func withStamps(db *gorm.DB) *gorm.DB {
	return db.Preload("Creator").Preload("Modifier")
}

func (r *GormResourceRepository) Create(_ context.Context, tx *gorm.DB, resource *models.Resource) error {
	return useTx(r.db, tx).Omit("Creator", "Modifier").Create(resource).Error
}

func (r *GormResourceRepository) GetByID(_ context.Context, tx *gorm.DB, resourceID uint) (models.Resource, error) {
	var resource models.Resource
	err := withStamps(useTx(r.db, tx)).First(&resource, resourceID).Error
	return resource, err
}

func (r *GormResourceRepository) GetByIDs(_ context.Context, tx *gorm.DB, resourceIDs []uint) ([]models.Resource, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	var resources []models.Resource
	err := withStamps(useTx(r.db, tx)).Where("id IN ?", resourceIDs).Order("id ASC").Find(&resources).Error
	return resources, err
}

func (r *GormResourceRepository) FindChild(_ context.Context, tx *gorm.DB, parentID uint, name string) (models.Resource, error) {
	var resource models.Resource
	err := useTx(r.db, tx).Where("parent_id = ? AND name = ?", parentID, name).First(&resource).Error
	return resource, err
}

func (r *GormResourceRepository) ListChildren(_ context.Context, tx *gorm.DB, in ListChildrenInput) ([]models.Resource, error) {
	var resources []models.Resource
	err := withStamps(useTx(r.db, tx)).
		Where("parent_id = ? AND id > ?", in.ParentID, in.Cursor).
		Order("id ASC").
		Limit(in.Limit).
		Find(&resources).Error
	return resources, err
}

func (r *GormResourceRepository) ListShared(_ context.Context, tx *gorm.DB, in ListSharedInput) ([]models.Resource, error) {
	var resources []models.Resource
	err := withStamps(useTx(r.db, tx)).
		Joins("JOIN access_entries e ON e.resource_id = resources.id").
		Where("e.user_id = ? AND (e.mask & ?) = ? AND resources.id > ?", in.UserID, models.AccessRead, models.AccessRead, in.Cursor).
		Order("resources.id ASC").
		Limit(in.Limit).
		Find(&resources).Error
	return resources, err
}

func (r *GormResourceRepository) Ancestors(_ context.Context, tx *gorm.DB, resourceID uint) ([]uint, error) {
	var ids []uint
	err := useTx(r.db, tx).Raw(ancestorsCTE+`
		SELECT id FROM p ORDER BY depth ASC`, resourceID, r.maxDepth).Scan(&ids).Error
	return ids, err
}

func (r *GormResourceRepository) Subtree(_ context.Context, tx *gorm.DB, rootID uint) ([]SubtreeNode, error) {
	var nodes []SubtreeNode
	err := useTx(r.db, tx).Raw(`WITH RECURSIVE s (id, depth) AS (
			SELECT id, 0 FROM resources WHERE id = ?
			UNION ALL
			SELECT r.id, s.depth + 1 FROM resources r JOIN s ON r.parent_id = s.id
			WHERE s.depth < ?
		)
		SELECT resources.*, s.depth FROM resources JOIN s ON resources.id = s.id
		ORDER BY s.depth ASC, resources.id ASC`, rootID, r.maxDepth).Scan(&nodes).Error
	return nodes, err
}

func (r *GormResourceRepository) UpdateByID(_ context.Context, tx *gorm.DB, resourceID uint, updates map[string]interface{}) error {
	return useTx(r.db, tx).Model(&models.Resource{}).Where("id = ?", resourceID).Updates(updates).Error
}

func (r *GormResourceRepository) DeleteByIDs(_ context.Context, tx *gorm.DB, resourceIDs []uint) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	return useTx(r.db, tx).Where("id IN ?", resourceIDs).Delete(&models.Resource{}).Error
}
