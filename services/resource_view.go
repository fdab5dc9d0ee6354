package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"teamdrive/models"
	"teamdrive/objectstore"
	"teamdrive/repositories"

	"gorm.io/gorm"
)

// ResourceDetail is the full client view of a non-folder resource. Object
// ids are replaced with signed download URLs.
type ResourceDetail struct {
	models.ResourceSummary
	Original interface{}   `json:"original"`
	Variants []interface{} `json:"variants"`
}

// FolderListing is a folder summary with one page of its children.
type FolderListing struct {
	models.ResourceSummary
	Children Page `json:"children"`
}

// Page follows a read()-like contract: Next equals the input cursor once the
// collection is exhausted.
type Page struct {
	Entries []models.ResourceSummary `json:"entries"`
	Next    string                   `json:"next"`
}

func paginate(resources []models.Resource, cursor uint) Page {
	page := Page{Entries: make([]models.ResourceSummary, 0, len(resources))}
	for _, r := range resources {
		page.Entries = append(page.Entries, r.Summary())
	}
	next := cursor
	if len(resources) > 0 {
		next = resources[len(resources)-1].ID
	}
	page.Next = fmt.Sprintf("%d", next)
	return page
}

type resourceDescriber struct {
	objects    repositories.BackingObjectRepository
	store      objectstore.Store
	presignTTL time.Duration
}

func (d resourceDescriber) describe(ctx context.Context, resource models.Resource) (ResourceDetail, error) {
	detail := ResourceDetail{ResourceSummary: resource.Summary(), Variants: []interface{}{}}

	original, err := resource.OriginalMeta()
	if err != nil {
		return detail, err
	}
	variants, err := resource.VariantMetas()
	if err != nil {
		return detail, err
	}

	ids, err := resource.ObjectIDs()
	if err != nil {
		return detail, err
	}
	objects, err := d.objects.GetByIDs(ctx, nil, ids)
	if err != nil {
		return detail, err
	}
	byID := make(map[uint]models.BackingObject, len(objects))
	for _, obj := range objects {
		byID[obj.ID] = obj
	}

	sign := func(objectID uint) (string, error) {
		obj, ok := byID[objectID]
		if !ok {
			return "", fmt.Errorf("backing object %d is missing", objectID)
		}
		return d.store.PresignGet(ctx, obj.Bucket, obj.Key, d.presignTTL)
	}

	if original != nil {
		if detail.Original, err = original.Redact(sign); err != nil {
			return detail, err
		}
	}
	for _, v := range variants {
		view, err := v.Redact(sign)
		if err != nil {
			return detail, err
		}
		detail.Variants = append(detail.Variants, view)
	}
	return detail, nil
}

// releaseObjects returns the storage of objects whose last reference was
// dropped to their owning teams.
func releaseObjects(ctx context.Context, tx *gorm.DB, ledger *QuotaLedger, released []models.BackingObject) error {
	perTeam := make(map[uint]int64)
	for _, obj := range released {
		perTeam[obj.TeamID] += obj.Size
	}
	teamIDs := make([]uint, 0, len(perTeam))
	for id := range perTeam {
		teamIDs = append(teamIDs, id)
	}
	sort.Slice(teamIDs, func(i, j int) bool { return teamIDs[i] < teamIDs[j] })

	for _, id := range teamIDs {
		if err := ledger.Apply(ctx, tx, id, repositories.Usage{Storage: -perTeam[id]}); err != nil {
			return err
		}
	}
	return nil
}

// metaFor builds the original descriptor of a freshly uploaded object.
func metaFor(kind models.ResourceKind, objectID uint) models.Meta {
	file := models.FileMeta{ID: objectID}
	switch kind {
	case models.KindPicture:
		return models.PictureMeta{FileMeta: file}
	case models.KindVideo:
		return models.VideoMeta{FileMeta: file}
	}
	return file
}
