package repositories

import (
	"context"
	"sort"

	"teamdrive/models"

	"gorm.io/gorm"
)

type GormBackingObjectRepository struct {
	db *gorm.DB
}

func NewGormBackingObjectRepository(db *gorm.DB) *GormBackingObjectRepository {
	return &GormBackingObjectRepository{db: db}
}

func (r *GormBackingObjectRepository) Create(_ context.Context, tx *gorm.DB, object *models.BackingObject) error {
	return useTx(r.db, tx).Create(object).Error
}

func (r *GormBackingObjectRepository) GetByID(_ context.Context, tx *gorm.DB, objectID uint) (models.BackingObject, error) {
	var obj models.BackingObject
	err := useTx(r.db, tx).First(&obj, objectID).Error
	return obj, err
}

func (r *GormBackingObjectRepository) GetByIDs(_ context.Context, tx *gorm.DB, objectIDs []uint) ([]models.BackingObject, error) {
	if len(objectIDs) == 0 {
		return nil, nil
	}
	var objects []models.BackingObject
	err := useTx(r.db, tx).Where("id IN ?", objectIDs).Order("id ASC").Find(&objects).Error
	return objects, err
}

func (r *GormBackingObjectRepository) ListLinked(_ context.Context, tx *gorm.DB, resourceID uint) ([]models.BackingObject, error) {
	var objects []models.BackingObject
	err := useTx(r.db, tx).
		Joins("JOIN resource_object_links l ON l.object_id = backing_objects.id").
		Where("l.resource_id = ?", resourceID).
		Order("backing_objects.id ASC").
		Find(&objects).Error
	return objects, err
}

func (r *GormBackingObjectRepository) Link(_ context.Context, tx *gorm.DB, resourceID uint, objectIDs []uint) error {
	db := useTx(r.db, tx)
	seen := make(map[uint]struct{}, len(objectIDs))
	for _, objectID := range objectIDs {
		if _, ok := seen[objectID]; ok {
			continue
		}
		seen[objectID] = struct{}{}

		link := models.ResourceObjectLink{ResourceID: resourceID, ObjectID: objectID}
		if err := db.Create(&link).Error; err != nil {
			return err
		}
		if err := db.Model(&models.BackingObject{}).
			Where("id = ?", objectID).
			Update("ref_count", gorm.Expr("ref_count + 1")).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *GormBackingObjectRepository) Unlink(_ context.Context, tx *gorm.DB, resourceIDs []uint) ([]models.BackingObject, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	db := useTx(r.db, tx)

	var links []models.ResourceObjectLink
	if err := db.Where("resource_id IN ?", resourceIDs).Find(&links).Error; err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}

	counts := make(map[uint]int64)
	for _, link := range links {
		counts[link.ObjectID]++
	}
	objectIDs := make([]uint, 0, len(counts))
	for id := range counts {
		objectIDs = append(objectIDs, id)
	}
	sort.Slice(objectIDs, func(i, j int) bool { return objectIDs[i] < objectIDs[j] })

	if err := db.Where("resource_id IN ?", resourceIDs).Delete(&models.ResourceObjectLink{}).Error; err != nil {
		return nil, err
	}
	for _, id := range objectIDs {
		if err := db.Model(&models.BackingObject{}).
			Where("id = ?", id).
			Update("ref_count", gorm.Expr("ref_count - ?", counts[id])).Error; err != nil {
			return nil, err
		}
	}

	var released []models.BackingObject
	err := db.Where("id IN ? AND ref_count <= 0", objectIDs).Order("id ASC").Find(&released).Error
	return released, err
}

func (r *GormBackingObjectRepository) ListUnreferenced(_ context.Context, tx *gorm.DB, limit int) ([]models.BackingObject, error) {
	var objects []models.BackingObject
	err := useTx(r.db, tx).Where("ref_count <= 0").Order("id ASC").Limit(limit).Find(&objects).Error
	return objects, err
}

func (r *GormBackingObjectRepository) DeleteByID(_ context.Context, tx *gorm.DB, objectID uint) error {
	return useTx(r.db, tx).Delete(&models.BackingObject{}, objectID).Error
}
