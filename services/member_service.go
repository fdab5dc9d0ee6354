package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"teamdrive/models"
	"teamdrive/repositories"

	"gorm.io/gorm"
)

// HierarchyEntry is one grant a member holds on the resource or an ancestor.
// On is hidden when the caller cannot read the granting resource.
type HierarchyEntry struct {
	Mask      models.AccessMask       `json:"mask"`
	On        *models.ResourceSummary `json:"on"`
	Removable bool                    `json:"removable"`
}

type MemberPermissions struct {
	Mask      models.AccessMask `json:"mask"`
	Hierarchy []HierarchyEntry  `json:"hierarchy"`
}

type Member struct {
	models.UserSummary
	Permissions MemberPermissions `json:"permissions"`
}

// MemberView maps user ids to their grants on a resource.
type MemberView map[uint]Member

// Members lists who can read the resource through explicit entries. Grants
// made on team roots are never listed.
func (s *resourceService) Members(ctx context.Context, resourceID uint, userID uint) (MemberView, error) {
	if _, err := s.resources.GetByID(ctx, nil, resourceID); err != nil {
		return nil, notFoundOr(err, "Resource not found")
	}
	grants, err := s.resolver.grants(ctx, nil, resourceID, userID)
	if err != nil {
		return nil, newAppError(http.StatusInternalServerError, "Failed to resolve permissions", err)
	}
	if !grants.Has(models.AccessRead) {
		return nil, newAppError(http.StatusForbidden, "You may not view this resource", nil)
	}

	entries, err := s.resolver.pathEntries(ctx, nil, resourceID)
	if err != nil {
		return nil, newAppError(http.StatusInternalServerError, "Failed to list members", err)
	}
	view, err := s.memberView(ctx, grants, entries, userID)
	if err != nil {
		return nil, newAppError(http.StatusInternalServerError, "Failed to list members", err)
	}
	return view, nil
}

func (s *resourceService) memberView(ctx context.Context, grants Grants, entries []models.PathEntry, userID uint) (MemberView, error) {
	resourceIDs := make([]uint, 0, len(grants.Path))
	for _, e := range entries {
		if e.ResourceParent != nil {
			resourceIDs = append(resourceIDs, e.ResourceID)
		}
	}
	summaries := make(map[uint]models.ResourceSummary)
	if len(resourceIDs) > 0 {
		resources, err := s.resources.GetByIDs(ctx, nil, resourceIDs)
		if err != nil {
			return nil, err
		}
		for _, r := range resources {
			summaries[r.ID] = r.Summary()
		}
	}

	var hasPerm, isOwner bool
	if grants.Membership != nil {
		root := grants.Membership.Mask.RootAccess()
		hasPerm = root.Has(models.AccessRead)
		isOwner = root.Has(models.AccessOwner)
	}

	view := make(MemberView)
	// root first, so a grant is removable only by an owner of a strict ancestor
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.UserID == userID && e.Has(models.AccessRead) {
			hasPerm = true
		}
		if e.ResourceParent != nil && e.Has(models.AccessRead) {
			member, ok := view[e.UserID]
			if !ok {
				member = Member{
					UserSummary: models.UserSummary{ID: e.UserID, Email: e.UserEmail},
					Permissions: MemberPermissions{Hierarchy: []HierarchyEntry{}},
				}
			}
			entry := HierarchyEntry{Mask: e.Mask, Removable: isOwner}
			if hasPerm {
				if summary, ok := summaries[e.ResourceID]; ok {
					entry.On = &summary
				}
			}
			member.Permissions.Mask |= e.Mask
			member.Permissions.Hierarchy = append(member.Permissions.Hierarchy, entry)
			view[e.UserID] = member
		}
		if e.UserID == userID && e.Has(models.AccessOwner) {
			isOwner = true
		}
	}
	return view, nil
}

type memberChange struct {
	key  string
	user models.User
	mask models.AccessMask
}

// UpdateMembers applies a map of user id or email to mask. A zero mask
// removes an existing direct member. Users outside the team are invited when
// the caller may invite.
func (s *resourceService) UpdateMembers(ctx context.Context, resourceID uint, userID uint, updates map[string]int64) (MemberView, error) {
	err := s.txManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		resource, err := s.resources.GetByID(ctx, tx, resourceID)
		if err != nil {
			return notFoundOr(err, "Resource not found")
		}
		grants, err := s.resolver.grants(ctx, tx, resourceID, userID)
		if err != nil {
			return err
		}
		if !grants.TeamHas(models.TeamWrite) {
			return newAppError(http.StatusForbidden, "You may not share resources belonging to this team", nil)
		}

		var maxMask models.AccessMask
		var canShare, isOwner bool
		for _, e := range grants.Entries {
			maxMask |= e.Mask
			// a folder's own entry does not let its holder manage it
			if e.ResourceID == resource.ID && resource.IsFolder() {
				continue
			}
			if e.Has(models.AccessShare) {
				canShare = true
			}
			if e.Has(models.AccessOwner) {
				isOwner = true
			}
		}

		changes, err := s.resolveMemberKeys(ctx, tx, updates)
		if err != nil {
			return err
		}
		direct, err := s.entries.ListByResource(ctx, tx, resource.ID)
		if err != nil {
			return err
		}
		existing := make(map[uint]models.AccessEntry, len(direct))
		for _, e := range direct {
			existing[e.UserID] = e
		}

		var removed []uint
		var invited []memberChange
		for _, c := range changes {
			if entry, ok := existing[c.user.ID]; ok {
				if !isOwner {
					return newAppError(http.StatusForbidden, "You may not manage this resource's members", nil)
				}
				if c.mask == 0 {
					removed = append(removed, entry.ID)
				} else if c.mask != entry.Mask {
					if err := s.entries.UpdateMask(ctx, tx, entry.ID, c.mask); err != nil {
						return err
					}
				}
				continue
			}
			if !canShare {
				return newAppError(http.StatusForbidden, "You may not share this resource", nil)
			}
			if c.mask == 0 {
				return newAppError(http.StatusBadRequest, fmt.Sprintf("Invalid mask for member %s", c.key), nil)
			}
			if !maxMask.Covers(c.mask) {
				return newAppError(http.StatusForbidden, fmt.Sprintf("You may not grant mask %d", c.mask), nil)
			}
			invited = append(invited, c)
		}

		if len(removed) > 0 {
			if err := s.entries.DeleteByIDs(ctx, tx, removed); err != nil {
				return err
			}
		}
		return s.grantNewMembers(ctx, tx, grants, resource.ID, invited)
	})
	if err != nil {
		return nil, mutationError(err, "Failed to update members")
	}
	return s.Members(ctx, resourceID, userID)
}

// resolveMemberKeys looks up every key, numeric keys as user ids and the
// rest as emails, in a stable order.
func (s *resourceService) resolveMemberKeys(ctx context.Context, tx *gorm.DB, updates map[string]int64) ([]memberChange, error) {
	keys := make([]string, 0, len(updates))
	for key := range updates {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var ids []uint
	var emails []string
	for _, key := range keys {
		mask := updates[key]
		if mask < 0 || mask > int64(models.AccessOwner) {
			return nil, newAppError(http.StatusBadRequest, "Invalid resource members", nil)
		}
		if id, err := strconv.ParseUint(key, 10, 64); err == nil {
			ids = append(ids, uint(id))
		} else if strings.Contains(key, "@") {
			emails = append(emails, normalizeEmail(key))
		} else {
			return nil, newAppError(http.StatusBadRequest, fmt.Sprintf("Invalid user %s", key), nil)
		}
	}

	users, err := s.users.FindByIDsOrEmails(ctx, tx, ids, emails)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.User, len(users))
	byEmail := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
		byEmail[normalizeEmail(u.Email)] = u
	}

	seen := make(map[uint]bool, len(keys))
	changes := make([]memberChange, 0, len(keys))
	for _, key := range keys {
		var user models.User
		var ok bool
		if id, err := strconv.ParseUint(key, 10, 64); err == nil {
			user, ok = byID[uint(id)]
		} else if user, ok = byEmail[normalizeEmail(key)]; !ok {
			// unknown addresses get an account; the enclosing transaction
			// drops it again if the update fails
			email := normalizeEmail(key)
			if s.validate.Var(email, emailRule) == nil {
				user = models.User{Email: email}
				if err := s.users.Create(ctx, tx, &user); err != nil {
					return nil, err
				}
				byEmail[email] = user
				ok = true
			}
		}
		if !ok {
			return nil, newAppError(http.StatusBadRequest, fmt.Sprintf("Invalid user %s", key), nil)
		}
		if seen[user.ID] {
			return nil, newAppError(http.StatusBadRequest, fmt.Sprintf("User %s is listed twice", key), nil)
		}
		seen[user.ID] = true
		changes = append(changes, memberChange{key: key, user: user, mask: models.AccessMask(updates[key])})
	}
	return changes, nil
}

// grantNewMembers creates entries for users without one on the resource,
// inviting non-members into the team first.
func (s *resourceService) grantNewMembers(ctx context.Context, tx *gorm.DB, grants Grants, resourceID uint, invited []memberChange) error {
	if len(invited) == 0 {
		return nil
	}
	team := grants.Membership.Team
	ids := make([]uint, len(invited))
	for i, c := range invited {
		ids[i] = c.user.ID
	}
	memberships, err := s.memberships.ListByUsersInTeam(ctx, tx, team.ID, ids)
	if err != nil {
		return err
	}
	members := make(map[uint]models.Membership, len(memberships))
	for _, m := range memberships {
		members[m.UserID] = m
	}

	// invitees only join with READ; wider team capabilities are granted
	// through SetMemberMask
	var joined int64
	for _, c := range invited {
		m, ok := members[c.user.ID]
		if !ok || !m.Has(models.TeamRead) {
			if !grants.TeamHas(models.TeamInvite) {
				return newAppError(http.StatusForbidden, "You may not invite users to join this team", nil)
			}
		}
		switch {
		case !ok:
			joined++
			if err := s.ledger.CheckHard(team, repositories.Usage{Members: joined}); err != nil {
				return err
			}
			membership := models.Membership{UserID: c.user.ID, TeamID: team.ID, Mask: models.TeamRead}
			if err := s.memberships.Create(ctx, tx, &membership); err != nil {
				return err
			}
		case !m.Has(models.TeamRead):
			if err := s.memberships.UpdateMask(ctx, tx, m.ID, m.Mask|models.TeamRead); err != nil {
				return err
			}
		}

		entry := models.AccessEntry{ResourceID: resourceID, UserID: c.user.ID, Mask: c.mask}
		if err := s.entries.Create(ctx, tx, &entry); err != nil {
			return err
		}
	}

	if joined == 0 {
		return nil
	}
	return s.ledger.Apply(ctx, tx, team.ID, repositories.Usage{Members: joined})
}
