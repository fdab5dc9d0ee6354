package models

import (
	"time"

	"gorm.io/datatypes"
)

type ResourceKind string

const (
	KindFolder  ResourceKind = "folder"
	KindFile    ResourceKind = "file"
	KindPicture ResourceKind = "picture"
	KindVideo   ResourceKind = "video"
)

func (k ResourceKind) Valid() bool {
	switch k {
	case KindFolder, KindFile, KindPicture, KindVideo:
		return true
	}
	return false
}

// Resource is a node of a team's tree. Roots have no parent and are
// referenced by exactly one Team.
type Resource struct {
	ID         uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	ParentID   *uint          `gorm:"uniqueIndex:idx_resource_parent_name" json:"folder"`
	Name       string         `gorm:"type:varchar(200);not null;uniqueIndex:idx_resource_parent_name" json:"name"`
	Kind       ResourceKind   `gorm:"type:varchar(10);not null" json:"kind"`
	CreatedAt  time.Time      `json:"created_at"`
	CreatedBy  *uint          `json:"created_by"`
	ModifiedAt time.Time      `gorm:"autoUpdateTime" json:"modified_at"`
	ModifiedBy *uint          `json:"modified_by"`
	Original   datatypes.JSON `json:"-"`
	Variants   datatypes.JSON `json:"-"`

	Creator  *User `gorm:"foreignKey:CreatedBy" json:"-"`
	Modifier *User `gorm:"foreignKey:ModifiedBy" json:"-"`
}

func (r Resource) IsFolder() bool {
	return r.Kind == KindFolder
}

func (r Resource) IsRoot() bool {
	return r.ParentID == nil
}

type Stamp struct {
	On time.Time    `json:"on"`
	By *UserSummary `json:"by"`
}

type ResourceSummary struct {
	ID       uint         `json:"id"`
	Name     string       `json:"name"`
	Kind     ResourceKind `json:"kind"`
	Folder   *uint        `json:"folder"`
	Created  Stamp        `json:"created"`
	Modified Stamp        `json:"modified"`
}

// Summary renders r without metadata. Creator and Modifier must be preloaded
// for the stamps to carry a user.
func (r Resource) Summary() ResourceSummary {
	return ResourceSummary{
		ID:       r.ID,
		Name:     r.Name,
		Kind:     r.Kind,
		Folder:   r.ParentID,
		Created:  Stamp{On: r.CreatedAt, By: userSummaryOf(r.Creator)},
		Modified: Stamp{On: r.ModifiedAt, By: userSummaryOf(r.Modifier)},
	}
}

func userSummaryOf(u *User) *UserSummary {
	if u == nil {
		return nil
	}
	s := u.Summary()
	return &s
}

// OriginalMeta decodes the original descriptor according to r.Kind.
func (r Resource) OriginalMeta() (Meta, error) {
	return DecodeMeta(r.Kind, r.Original)
}

// VariantMetas decodes the derived-variant descriptors according to r.Kind.
func (r Resource) VariantMetas() ([]Meta, error) {
	return DecodeMetaList(r.Kind, r.Variants)
}

// ObjectIDs returns every backing object referenced by r's metadata.
func (r Resource) ObjectIDs() ([]uint, error) {
	original, err := r.OriginalMeta()
	if err != nil {
		return nil, err
	}
	variants, err := r.VariantMetas()
	if err != nil {
		return nil, err
	}
	var ids []uint
	if original != nil {
		ids = append(ids, original.ObjectIDs()...)
	}
	for _, v := range variants {
		ids = append(ids, v.ObjectIDs()...)
	}
	return ids, nil
}
