package repositories

import (
	"context"

	"teamdrive/models"

	"gorm.io/gorm"
)

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(_ context.Context, tx *gorm.DB, user *models.User) error {
	return useTx(r.db, tx).Create(user).Error
}

func (r *GormUserRepository) GetByID(_ context.Context, tx *gorm.DB, userID uint) (models.User, error) {
	var user models.User
	err := useTx(r.db, tx).First(&user, userID).Error
	return user, err
}

func (r *GormUserRepository) GetByEmail(_ context.Context, tx *gorm.DB, email string) (models.User, error) {
	var user models.User
	err := useTx(r.db, tx).Where("email = ?", email).First(&user).Error
	return user, err
}

func (r *GormUserRepository) FindByIDsOrEmails(_ context.Context, tx *gorm.DB, ids []uint, emails []string) ([]models.User, error) {
	if len(ids) == 0 && len(emails) == 0 {
		return nil, nil
	}
	db := useTx(r.db, tx).Model(&models.User{})
	switch {
	case len(ids) > 0 && len(emails) > 0:
		db = db.Where("id IN ? OR email IN ?", ids, emails)
	case len(ids) > 0:
		db = db.Where("id IN ?", ids)
	default:
		db = db.Where("email IN ?", emails)
	}
	var users []models.User
	err := db.Order("id ASC").Find(&users).Error
	return users, err
}
