package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"teamdrive/models"
	"teamdrive/repositories"

	"gorm.io/gorm"
)

type transferInput struct {
	UserID uint
	// Target is the destination folder, or the file whose contents are
	// replaced by the source's.
	Target   models.Resource
	Grants   Grants
	SourceID uint
	Name     string
	Delete   bool
}

// treeEngine implements copy and move on top of the resolver and the quota
// ledger. Every method runs inside the caller's transaction.
type treeEngine struct {
	resolver  accessResolver
	teams     repositories.TeamRepository
	resources repositories.ResourceRepository
	entries   repositories.AccessEntryRepository
	objects   repositories.BackingObjectRepository
	ledger    *QuotaLedger
	maxDepth  int
}

// transfer copies, moves or replaces and returns the id of the resulting
// resource together with the status describing what happened.
func (e treeEngine) transfer(ctx context.Context, tx *gorm.DB, in transferInput) (uint, int, error) {
	source, err := e.resolver.grants(ctx, tx, in.SourceID, in.UserID)
	if err != nil {
		return 0, 0, err
	}
	if !source.Exists() {
		return 0, 0, newAppError(http.StatusNotFound, "Referenced resource not found", nil)
	}
	if !source.Has(models.AccessRead) {
		return 0, 0, newAppError(http.StatusForbidden, "You may not view the referenced resource", nil)
	}
	if !canShareInto(source, in.Grants) {
		return 0, 0, newAppError(http.StatusForbidden, "You may not copy the referenced resource", nil)
	}
	if in.Delete && !source.Inherited().Has(models.AccessWrite) {
		return 0, 0, newAppError(http.StatusForbidden, "You may not move the referenced resource", nil)
	}

	src, err := e.resources.GetByID(ctx, tx, in.SourceID)
	if err != nil {
		return 0, 0, err
	}

	if !in.Target.IsFolder() {
		id, err := e.replace(ctx, tx, in, src)
		return id, http.StatusOK, err
	}

	if _, err := e.resources.FindChild(ctx, tx, in.Target.ID, in.Name); err == nil {
		return 0, 0, newAppError(http.StatusConflict, "A resource with the same name already exists", nil)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, err
	}

	if in.Delete {
		id, err := e.move(ctx, tx, in, src)
		return id, http.StatusOK, err
	}
	id, err := e.copy(ctx, tx, in, src)
	return id, http.StatusCreated, err
}

// checkNesting rejects placing a subtree of the given height directly below
// the resource parent describes. Ancestor and subtree queries stop at
// maxDepth, so nothing may ever be stored deeper than that.
func checkNesting(parent Grants, height int, maxDepth int) error {
	if maxDepth <= 0 || parent.Depth()+1+height <= maxDepth {
		return nil
	}
	return newAppError(http.StatusBadRequest, fmt.Sprintf("Resources may not be nested more than %d levels deep", maxDepth), nil)
}

// canShareInto reports whether the source may appear under the destination:
// either the caller can share it, or both sit below a common resource the
// caller can write.
func canShareInto(source Grants, dest Grants) bool {
	if source.Has(models.AccessShare) && dest.TeamHas(models.TeamShare) {
		return true
	}
	writable := dest.WritableAncestors()
	for id := range source.WritableAncestors() {
		if _, ok := writable[id]; ok {
			return true
		}
	}
	return false
}

func (e treeEngine) move(ctx context.Context, tx *gorm.DB, in transferInput, src models.Resource) (uint, error) {
	if src.IsRoot() {
		return 0, newAppError(http.StatusForbidden, "You may not move a team root", nil)
	}
	for _, id := range in.Grants.Path {
		if id == src.ID {
			return 0, newAppError(http.StatusBadRequest, "A resource cannot be moved into itself", nil)
		}
	}

	nodes, err := e.resources.Subtree(ctx, tx, src.ID)
	if err != nil {
		return 0, err
	}
	if err := checkNesting(in.Grants, subtreeHeight(nodes), e.maxDepth); err != nil {
		return 0, err
	}

	from, err := e.teams.GetByResource(ctx, tx, src.ID)
	if err != nil {
		return 0, err
	}
	to := in.Grants.Membership.Team
	if from.ID != to.ID {
		n := int64(len(nodes))
		if err := e.ledger.CheckHard(to, repositories.Usage{Resources: n}); err != nil {
			return 0, err
		}
		if err := e.ledger.Apply(ctx, tx, to.ID, repositories.Usage{Resources: n}); err != nil {
			return 0, err
		}
		if err := e.ledger.Apply(ctx, tx, from.ID, repositories.Usage{Resources: -n}); err != nil {
			return 0, err
		}
	}

	err = e.resources.UpdateByID(ctx, tx, src.ID, map[string]interface{}{
		"parent_id":   in.Target.ID,
		"name":        in.Name,
		"modified_by": in.UserID,
	})
	if err != nil {
		return 0, err
	}
	return src.ID, nil
}

// copy clones the source subtree breadth first. Clones share the backing
// objects of their originals.
func (e treeEngine) copy(ctx context.Context, tx *gorm.DB, in transferInput, src models.Resource) (uint, error) {
	nodes, err := e.resources.Subtree(ctx, tx, src.ID)
	if err != nil {
		return 0, err
	}
	if err := checkNesting(in.Grants, subtreeHeight(nodes), e.maxDepth); err != nil {
		return 0, err
	}
	to := in.Grants.Membership.Team
	n := int64(len(nodes))
	if err := e.ledger.CheckHard(to, repositories.Usage{Resources: n}); err != nil {
		return 0, err
	}

	uid := in.UserID
	clones := make(map[uint]uint, len(nodes))
	for i, node := range nodes {
		parentID := in.Target.ID
		name := node.Name
		if i == 0 {
			name = in.Name
		} else {
			parentID = clones[*node.ParentID]
		}

		clone := models.Resource{
			ParentID:   &parentID,
			Name:       name,
			Kind:       node.Kind,
			CreatedBy:  &uid,
			ModifiedBy: &uid,
			Original:   node.Original,
			Variants:   node.Variants,
		}
		if err := e.resources.Create(ctx, tx, &clone); err != nil {
			return 0, err
		}
		clones[node.ID] = clone.ID

		ids, err := node.Resource.ObjectIDs()
		if err != nil {
			return 0, err
		}
		if err := e.objects.Link(ctx, tx, clone.ID, ids); err != nil {
			return 0, err
		}
	}

	if err := e.ledger.Apply(ctx, tx, to.ID, repositories.Usage{Resources: n}); err != nil {
		return 0, err
	}
	return clones[src.ID], nil
}

// subtreeHeight is the depth of the deepest node of a breadth-first subtree.
func subtreeHeight(nodes []repositories.SubtreeNode) int {
	if len(nodes) == 0 {
		return 0
	}
	return nodes[len(nodes)-1].Depth
}

// replace swaps the target file's contents for the source's and, for a
// move, removes the source afterwards.
func (e treeEngine) replace(ctx context.Context, tx *gorm.DB, in transferInput, src models.Resource) (uint, error) {
	if src.IsFolder() {
		return 0, newAppError(http.StatusBadRequest, "A folder cannot replace a file", nil)
	}
	if src.ID == in.Target.ID {
		return 0, newAppError(http.StatusBadRequest, "A resource cannot replace itself", nil)
	}

	ids, err := src.ObjectIDs()
	if err != nil {
		return 0, err
	}
	// objects the source shares with the target are relinked and must not
	// be released
	released, err := e.objects.Unlink(ctx, tx, []uint{in.Target.ID})
	if err != nil {
		return 0, err
	}
	if err := e.objects.Link(ctx, tx, in.Target.ID, ids); err != nil {
		return 0, err
	}
	released, err = e.stillReleased(ctx, tx, released)
	if err != nil {
		return 0, err
	}
	if err := releaseObjects(ctx, tx, e.ledger, released); err != nil {
		return 0, err
	}

	err = e.resources.UpdateByID(ctx, tx, in.Target.ID, map[string]interface{}{
		"kind":        src.Kind,
		"original":    src.Original,
		"variants":    src.Variants,
		"modified_by": in.UserID,
	})
	if err != nil {
		return 0, err
	}

	if in.Delete {
		if err := e.remove(ctx, tx, src.ID); err != nil {
			return 0, err
		}
	}
	return in.Target.ID, nil
}

// stillReleased drops objects that were relinked after being released.
func (e treeEngine) stillReleased(ctx context.Context, tx *gorm.DB, released []models.BackingObject) ([]models.BackingObject, error) {
	if len(released) == 0 {
		return nil, nil
	}
	ids := make([]uint, len(released))
	for i, obj := range released {
		ids[i] = obj.ID
	}
	current, err := e.objects.GetByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	out := current[:0]
	for _, obj := range current {
		if obj.RefCount <= 0 {
			out = append(out, obj)
		}
	}
	return out, nil
}

// remove deletes rootID and its descendants with their links and entries,
// and returns the freed resource slots and storage to the owning teams.
func (e treeEngine) remove(ctx context.Context, tx *gorm.DB, rootID uint) error {
	team, err := e.teams.GetByResource(ctx, tx, rootID)
	if err != nil {
		return err
	}
	nodes, err := e.resources.Subtree(ctx, tx, rootID)
	if err != nil {
		return err
	}
	ids := make([]uint, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
	}

	released, err := e.objects.Unlink(ctx, tx, ids)
	if err != nil {
		return err
	}
	if err := releaseObjects(ctx, tx, e.ledger, released); err != nil {
		return err
	}
	if err := e.entries.DeleteByResourceIDs(ctx, tx, ids); err != nil {
		return err
	}
	if err := e.resources.DeleteByIDs(ctx, tx, ids); err != nil {
		return err
	}
	return e.ledger.Apply(ctx, tx, team.ID, repositories.Usage{Resources: -int64(len(ids))})
}
