package services

import (
	"testing"

	"teamdrive/models"
	"teamdrive/repositories"
)

func TestQuotaLedgerCheckHard(t *testing.T) {
	ledger := NewQuotaLedger(nil, 0.1)
	team := models.Team{
		MemberQuota: 2, UsedMembers: 1,
		ResourceQuota: 10, UsedResources: 9,
		StorageQuota: 100, UsedStorage: 60,
	}

	cases := []struct {
		name   string
		delta  repositories.Usage
		reason string
	}{
		{"fits", repositories.Usage{Members: 1, Resources: 1, Storage: 40}, ""},
		{"members", repositories.Usage{Members: 2}, "members"},
		{"resources", repositories.Usage{Resources: 2}, "resources"},
		{"storage", repositories.Usage{Storage: 41}, "storage"},
		{"negative deltas always pass", repositories.Usage{Members: -5, Resources: -5, Storage: -500}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ledger.CheckHard(team, tc.delta)
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("expected delta to fit, got %v", err)
				}
				return
			}
			appErr, ok := err.(*AppError)
			if !ok {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.HTTPCode != 422 || appErr.Kind != KindQuotaExceeded || appErr.Reason != tc.reason {
				t.Fatalf("unexpected error %+v", appErr)
			}
		})
	}
}

func TestQuotaLedgerCheckRelaxedAllowsMargin(t *testing.T) {
	ledger := NewQuotaLedger(nil, 0.1)
	team := models.Team{StorageQuota: 100, UsedStorage: 100}

	if err := ledger.CheckHard(team, repositories.Usage{Storage: 10}); err == nil {
		t.Fatalf("expected hard check to reject storage past the cap")
	}
	if err := ledger.CheckRelaxed(team, repositories.Usage{Storage: 10}); err != nil {
		t.Fatalf("expected relaxed check to accept storage within the margin, got %v", err)
	}
	if err := ledger.CheckRelaxed(team, repositories.Usage{Storage: 11}); err == nil {
		t.Fatalf("expected relaxed check to reject storage past the margin")
	}
}
