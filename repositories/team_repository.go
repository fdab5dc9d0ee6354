package repositories

import (
	"context"

	"teamdrive/models"

	"gorm.io/gorm"
)

type GormTeamRepository struct {
	db       *gorm.DB
	maxDepth int
}

func NewGormTeamRepository(db *gorm.DB, maxDepth int) *GormTeamRepository {
	return &GormTeamRepository{db: db, maxDepth: maxDepth}
}

func (r *GormTeamRepository) Create(_ context.Context, tx *gorm.DB, team *models.Team) error {
	return useTx(r.db, tx).Create(team).Error
}

func (r *GormTeamRepository) GetByID(_ context.Context, tx *gorm.DB, teamID uint) (models.Team, error) {
	var team models.Team
	err := useTx(r.db, tx).First(&team, teamID).Error
	return team, err
}

func (r *GormTeamRepository) GetByResource(_ context.Context, tx *gorm.DB, resourceID uint) (models.Team, error) {
	var teams []models.Team
	err := useTx(r.db, tx).Raw(ancestorsCTE+`
		SELECT t.* FROM teams t JOIN p ON t.root_resource_id = p.id
		WHERE p.parent_id IS NULL`, resourceID, r.maxDepth).Scan(&teams).Error
	if err != nil {
		return models.Team{}, err
	}
	if len(teams) == 0 {
		return models.Team{}, gorm.ErrRecordNotFound
	}
	return teams[0], nil
}

func (r *GormTeamRepository) ApplyUsage(_ context.Context, tx *gorm.DB, teamID uint, delta Usage) error {
	if delta.IsZero() {
		return nil
	}
	updates := map[string]interface{}{}
	if delta.Members != 0 {
		updates["used_members"] = gorm.Expr("used_members + ?", delta.Members)
	}
	if delta.Resources != 0 {
		updates["used_resources"] = gorm.Expr("used_resources + ?", delta.Resources)
	}
	if delta.Storage != 0 {
		updates["used_storage"] = gorm.Expr("used_storage + ?", delta.Storage)
	}
	return useTx(r.db, tx).Model(&models.Team{}).Where("id = ?", teamID).UpdateColumns(updates).Error
}
