package repositories

import (
	"context"

	"teamdrive/models"

	"gorm.io/gorm"
)

type GormMembershipRepository struct {
	db       *gorm.DB
	maxDepth int
}

func NewGormMembershipRepository(db *gorm.DB, maxDepth int) *GormMembershipRepository {
	return &GormMembershipRepository{db: db, maxDepth: maxDepth}
}

func (r *GormMembershipRepository) Create(_ context.Context, tx *gorm.DB, membership *models.Membership) error {
	return useTx(r.db, tx).Omit("User", "Team").Create(membership).Error
}

func (r *GormMembershipRepository) Get(_ context.Context, tx *gorm.DB, teamID uint, userID uint) (models.Membership, error) {
	var membership models.Membership
	err := useTx(r.db, tx).Preload("Team").
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&membership).Error
	return membership, err
}

func (r *GormMembershipRepository) ResolveForResource(_ context.Context, tx *gorm.DB, resourceID uint, userID uint) (models.Membership, error) {
	db := useTx(r.db, tx)

	var rows []models.Membership
	err := db.Raw(ancestorsCTE+`
		SELECT m.* FROM memberships m
		JOIN teams t ON t.id = m.team_id
		JOIN p ON t.root_resource_id = p.id
		WHERE p.parent_id IS NULL AND m.user_id = ?`, resourceID, r.maxDepth, userID).Scan(&rows).Error
	if err != nil {
		return models.Membership{}, err
	}
	if len(rows) == 0 {
		return models.Membership{}, gorm.ErrRecordNotFound
	}

	membership := rows[0]
	if err := db.First(&membership.Team, membership.TeamID).Error; err != nil {
		return models.Membership{}, err
	}
	return membership, nil
}

func (r *GormMembershipRepository) ListByUser(_ context.Context, tx *gorm.DB, userID uint) ([]models.Membership, error) {
	var memberships []models.Membership
	err := useTx(r.db, tx).Preload("Team").
		Where("user_id = ?", userID).
		Order("team_id ASC").
		Find(&memberships).Error
	return memberships, err
}

func (r *GormMembershipRepository) ListByUsersInTeam(_ context.Context, tx *gorm.DB, teamID uint, userIDs []uint) ([]models.Membership, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var memberships []models.Membership
	err := useTx(r.db, tx).
		Where("team_id = ? AND user_id IN ?", teamID, userIDs).
		Find(&memberships).Error
	return memberships, err
}

func (r *GormMembershipRepository) UpdateMask(_ context.Context, tx *gorm.DB, membershipID uint, mask models.TeamMask) error {
	return useTx(r.db, tx).Model(&models.Membership{}).
		Where("id = ?", membershipID).
		Update("mask", mask).Error
}

func (r *GormMembershipRepository) Delete(_ context.Context, tx *gorm.DB, membershipID uint) error {
	return useTx(r.db, tx).Delete(&models.Membership{}, membershipID).Error
}

func (r *GormMembershipRepository) CountWithMask(_ context.Context, tx *gorm.DB, teamID uint, mask models.TeamMask) (int64, error) {
	var count int64
	err := useTx(r.db, tx).Model(&models.Membership{}).
		Where("team_id = ? AND (mask & ?) = ?", teamID, mask, mask).
		Count(&count).Error
	return count, err
}
