package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"teamdrive/models"
	"teamdrive/repositories"

	"gorm.io/gorm"
)

type TeamService interface {
	CreateTeam(ctx context.Context, userID uint, in CreateTeamInput) (TeamView, error)
	ListTeams(ctx context.Context, userID uint) ([]TeamView, error)
	SetMemberMask(ctx context.Context, teamID uint, actorID uint, targetID uint, mask models.TeamMask) error
	Usage(ctx context.Context, teamID uint, userID uint) (TeamUsage, error)
}

// CreateTeamInput leaves a quota at the configured default when it is zero.
type CreateTeamInput struct {
	Name          string `json:"name"`
	MemberQuota   int64  `json:"member_quota"`
	ResourceQuota int64  `json:"resource_quota"`
	StorageQuota  int64  `json:"storage_quota"`
}

type TeamView struct {
	ID     uint            `json:"id"`
	Name   string          `json:"name"`
	Root   uint            `json:"root"`
	Mask   models.TeamMask `json:"mask"`
	Joined time.Time       `json:"joined"`
}

type UsageCounter struct {
	Used  int64 `json:"used"`
	Quota int64 `json:"quota"`
}

type TeamUsage struct {
	Members   UsageCounter `json:"members"`
	Resources UsageCounter `json:"resources"`
	Storage   UsageCounter `json:"storage"`
}

type TeamDefaults struct {
	MemberQuota   int64
	ResourceQuota int64
	StorageQuota  int64
}

type teamService struct {
	txManager   TxManager
	teams       repositories.TeamRepository
	memberships repositories.MembershipRepository
	resources   repositories.ResourceRepository
	entries     repositories.AccessEntryRepository
	ledger      *QuotaLedger
	defaults    TeamDefaults
}

func NewTeamService(repos repositories.Container, ledger *QuotaLedger, defaults TeamDefaults) TeamService {
	return &teamService{
		txManager:   repos.TxManager,
		teams:       repos.Teams,
		memberships: repos.Memberships,
		resources:   repos.Resources,
		entries:     repos.AccessEntries,
		ledger:      ledger,
		defaults:    defaults,
	}
}

// CreateTeam creates the team, its root folder and the creator's
// administrator membership.
func (s *teamService) CreateTeam(ctx context.Context, userID uint, in CreateTeamInput) (TeamView, error) {
	name := strings.TrimSpace(in.Name)
	if !validName(name) {
		return TeamView{}, newAppError(http.StatusBadRequest, "Invalid team name", nil)
	}
	if in.MemberQuota < 0 || in.ResourceQuota < 0 || in.StorageQuota < 0 {
		return TeamView{}, newAppError(http.StatusBadRequest, "Quotas must not be negative", nil)
	}

	team := models.Team{
		Name:          name,
		MemberQuota:   orDefault(in.MemberQuota, s.defaults.MemberQuota),
		ResourceQuota: orDefault(in.ResourceQuota, s.defaults.ResourceQuota),
		StorageQuota:  orDefault(in.StorageQuota, s.defaults.StorageQuota),
		UsedMembers:   1,
		UsedResources: 1,
	}
	membership := models.Membership{UserID: userID, Mask: models.TeamManageUsers}

	err := s.txManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		root := models.Resource{
			Name:       name,
			Kind:       models.KindFolder,
			CreatedBy:  &userID,
			ModifiedBy: &userID,
		}
		if err := s.resources.Create(ctx, tx, &root); err != nil {
			return err
		}
		team.RootResourceID = root.ID
		if err := s.teams.Create(ctx, tx, &team); err != nil {
			return err
		}
		membership.TeamID = team.ID
		return s.memberships.Create(ctx, tx, &membership)
	})
	if err != nil {
		return TeamView{}, newAppError(http.StatusInternalServerError, "Failed to create team", err)
	}
	return teamView(team, membership), nil
}

func orDefault(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func teamView(team models.Team, m models.Membership) TeamView {
	return TeamView{
		ID:     team.ID,
		Name:   team.Name,
		Root:   team.RootResourceID,
		Mask:   m.Mask,
		Joined: m.CreatedAt,
	}
}

func (s *teamService) ListTeams(ctx context.Context, userID uint) ([]TeamView, error) {
	memberships, err := s.memberships.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, newAppError(http.StatusInternalServerError, "Failed to list teams", err)
	}
	views := make([]TeamView, 0, len(memberships))
	for _, m := range memberships {
		views = append(views, teamView(m.Team, m))
	}
	return views, nil
}

// SetMemberMask changes targetID's team capabilities. Dropping READ removes
// the member from the team along with every entry they hold in its tree.
func (s *teamService) SetMemberMask(ctx context.Context, teamID uint, actorID uint, targetID uint, mask models.TeamMask) error {
	if !mask.Valid() {
		return newAppError(http.StatusBadRequest, "Invalid team mask", nil)
	}

	err := s.txManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		actor, err := s.memberships.Get(ctx, tx, teamID, actorID)
		if err != nil {
			return notFoundOr(err, "Team not found")
		}
		if !actor.Has(models.TeamManageUsers) {
			return newAppError(http.StatusForbidden, "You may not manage the members of this team", nil)
		}
		target, err := s.memberships.Get(ctx, tx, teamID, targetID)
		if err != nil {
			return notFoundOr(err, "Member not found")
		}
		if target.Mask == mask {
			return nil
		}

		if target.Has(models.TeamManageUsers) && !mask.Has(models.TeamManageUsers) {
			admins, err := s.memberships.CountWithMask(ctx, tx, teamID, models.TeamManageUsers)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return newAppError(http.StatusConflict, "A team needs at least one administrator", nil)
			}
		}

		if mask.Has(models.TeamRead) {
			return s.memberships.UpdateMask(ctx, tx, target.ID, mask)
		}
		if err := s.entries.DeleteByUserInTeam(ctx, tx, targetID, target.Team.RootResourceID); err != nil {
			return err
		}
		if err := s.memberships.Delete(ctx, tx, target.ID); err != nil {
			return err
		}
		return s.ledger.Apply(ctx, tx, teamID, repositories.Usage{Members: -1})
	})
	if err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return newAppError(http.StatusInternalServerError, "Failed to update member", err)
	}
	return nil
}

func (s *teamService) Usage(ctx context.Context, teamID uint, userID uint) (TeamUsage, error) {
	m, err := s.memberships.Get(ctx, nil, teamID, userID)
	if err != nil {
		return TeamUsage{}, notFoundOr(err, "Team not found")
	}
	if !m.Has(models.TeamRead) {
		return TeamUsage{}, newAppError(http.StatusForbidden, "You may not view this team", nil)
	}
	team := m.Team
	return TeamUsage{
		Members:   UsageCounter{Used: team.UsedMembers, Quota: team.MemberQuota},
		Resources: UsageCounter{Used: team.UsedResources, Quota: team.ResourceQuota},
		Storage:   UsageCounter{Used: team.UsedStorage, Quota: team.StorageQuota},
	}, nil
}
