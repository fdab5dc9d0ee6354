package services

import (
	"context"
	"errors"

	"teamdrive/models"
	"teamdrive/repositories"

	"gorm.io/gorm"
)

// Grants is everything a user holds on one resource: the explicit entries on
// its ancestor path, closest first, followed by the implicit root grant
// derived from team membership.
type Grants struct {
	ResourceID uint
	// Path lists the resource and its ancestors, closest first. It is empty
	// when the resource does not exist.
	Path       []uint
	Entries    []models.PathEntry
	Membership *models.Membership
}

func (g Grants) Exists() bool {
	return len(g.Path) > 0
}

// Depth is the number of levels between the resource and its team root.
func (g Grants) Depth() int {
	return len(g.Path) - 1
}

func (g Grants) RootID() uint {
	if len(g.Path) == 0 {
		return 0
	}
	return g.Path[len(g.Path)-1]
}

// Effective is the OR of every mask on the path.
func (g Grants) Effective() models.AccessMask {
	var mask models.AccessMask
	for _, e := range g.Entries {
		mask |= e.Mask
	}
	return mask
}

// Inherited is the OR of every mask granted strictly above the resource.
func (g Grants) Inherited() models.AccessMask {
	var mask models.AccessMask
	for _, e := range g.Entries {
		if e.Depth > 0 {
			mask |= e.Mask
		}
	}
	return mask
}

func (g Grants) Has(flag models.AccessMask) bool {
	return g.Effective().Has(flag)
}

func (g Grants) TeamHas(flag models.TeamMask) bool {
	return g.Membership != nil && g.Membership.Has(flag)
}

// WritableAncestors returns the ids of path resources that carry a WRITE
// grant.
func (g Grants) WritableAncestors() map[uint]struct{} {
	out := make(map[uint]struct{})
	for _, e := range g.Entries {
		if e.Has(models.AccessWrite) {
			out[e.ResourceID] = struct{}{}
		}
	}
	return out
}

// accessResolver answers permission questions against the ancestor path of a
// resource with a fixed number of bounded tree queries.
type accessResolver struct {
	resources   repositories.ResourceRepository
	entries     repositories.AccessEntryRepository
	memberships repositories.MembershipRepository
}

// grants resolves userID's grants on resourceID. A missing resource yields
// empty Grants and no error.
func (r accessResolver) grants(ctx context.Context, tx *gorm.DB, resourceID uint, userID uint) (Grants, error) {
	g := Grants{ResourceID: resourceID}

	path, err := r.resources.Ancestors(ctx, tx, resourceID)
	if err != nil {
		return g, err
	}
	if len(path) == 0 {
		return g, nil
	}
	g.Path = path

	uid := userID
	entries, err := r.entries.ListOnPath(ctx, tx, resourceID, &uid)
	if err != nil {
		return g, err
	}
	g.Entries = entries

	membership, err := r.memberships.ResolveForResource(ctx, tx, resourceID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return g, nil
		}
		return g, err
	}
	g.Membership = &membership

	if mask := membership.Mask.RootAccess(); mask != 0 {
		g.Entries = append(g.Entries, models.PathEntry{
			AccessEntry: models.AccessEntry{
				ResourceID: g.RootID(),
				UserID:     userID,
				Mask:       mask,
			},
			Depth:        len(path) - 1,
			ResourceKind: models.KindFolder,
		})
	}
	return g, nil
}

// pathEntries returns the explicit entries of every user on the path.
func (r accessResolver) pathEntries(ctx context.Context, tx *gorm.DB, resourceID uint) ([]models.PathEntry, error) {
	return r.entries.ListOnPath(ctx, tx, resourceID, nil)
}

// membership returns userID's membership in the team owning resourceID, or
// nil when the user is not a member.
func (r accessResolver) membership(ctx context.Context, tx *gorm.DB, resourceID uint, userID uint) (*models.Membership, error) {
	m, err := r.memberships.ResolveForResource(ctx, tx, resourceID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
