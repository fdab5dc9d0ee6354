package services

import (
	"context"
	"fmt"
	"net/http"

	"teamdrive/models"
	"teamdrive/repositories"

	"gorm.io/gorm"
)

type QuotaKind string

const (
	QuotaMembers   QuotaKind = "members"
	QuotaResources QuotaKind = "resources"
	QuotaStorage   QuotaKind = "storage"
)

// QuotaLedger enforces a team's member, resource and storage caps and applies
// usage deltas inside the caller's transaction.
type QuotaLedger struct {
	teams  repositories.TeamRepository
	margin float64
}

func NewQuotaLedger(teams repositories.TeamRepository, overcommitMargin float64) *QuotaLedger {
	return &QuotaLedger{teams: teams, margin: overcommitMargin}
}

// CheckHard rejects delta when any counter it grows would pass its cap.
func (l *QuotaLedger) CheckHard(team models.Team, delta repositories.Usage) error {
	return l.check(team, delta, 1)
}

// CheckRelaxed is CheckHard with every cap raised by the overcommit margin.
// It is used when an operation reserved its quota earlier and completes in a
// later step.
func (l *QuotaLedger) CheckRelaxed(team models.Team, delta repositories.Usage) error {
	return l.check(team, delta, 1+l.margin)
}

func (l *QuotaLedger) Apply(ctx context.Context, tx *gorm.DB, teamID uint, delta repositories.Usage) error {
	return l.teams.ApplyUsage(ctx, tx, teamID, delta)
}

func (l *QuotaLedger) check(team models.Team, delta repositories.Usage, factor float64) error {
	if delta.Members > 0 && exceeds(team.UsedMembers, delta.Members, team.MemberQuota, factor) {
		return newQuotaError(QuotaMembers)
	}
	if delta.Resources > 0 && exceeds(team.UsedResources, delta.Resources, team.ResourceQuota, factor) {
		return newQuotaError(QuotaResources)
	}
	if delta.Storage > 0 && exceeds(team.UsedStorage, delta.Storage, team.StorageQuota, factor) {
		return newQuotaError(QuotaStorage)
	}
	return nil
}

func exceeds(used, delta, quota int64, factor float64) bool {
	if factor == 1 {
		return used+delta > quota
	}
	return float64(used+delta) > float64(quota)*factor
}

func newQuotaError(kind QuotaKind) *AppError {
	return &AppError{
		HTTPCode: http.StatusUnprocessableEntity,
		Kind:     KindQuotaExceeded,
		Reason:   string(kind),
		Message:  fmt.Sprintf("Team %s quota exceeded", quotaLabel(kind)),
	}
}

func quotaLabel(kind QuotaKind) string {
	switch kind {
	case QuotaMembers:
		return "member"
	case QuotaResources:
		return "resource"
	}
	return string(kind)
}
