package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"teamdrive/models"
	"teamdrive/objectstore"
	"teamdrive/repositories"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

type ResourceService interface {
	List(ctx context.Context, userID uint, cursor uint) (Page, error)
	Retrieve(ctx context.Context, resourceID uint, userID uint, cursor uint) (interface{}, error)
	Update(ctx context.Context, resourceID uint, userID uint, in UpdateInput) (UpdateResult, error)
	Commit(ctx context.Context, resourceID uint, userID uint, params CommitParams, in CommitInput) (ResourceDetail, error)
	Destroy(ctx context.Context, resourceID uint, userID uint) error
	Members(ctx context.Context, resourceID uint, userID uint) (MemberView, error)
	UpdateMembers(ctx context.Context, resourceID uint, userID uint, updates map[string]int64) (MemberView, error)
	// ExpireSession closes an upload session past its deadline.
	ExpireSession(ctx context.Context, session models.UploadSession)
}

// UpdateInput selects one of folder creation, upload, copy, move or
// replace depending on the target kind and the fields set.
type UpdateInput struct {
	Name   string `json:"name"`
	Size   *int64 `json:"size"`
	From   *uint  `json:"from"`
	Delete bool   `json:"delete"`
}

type UpdateResult struct {
	Status int
	Body   interface{}
}

type resourceService struct {
	txManager    TxManager
	users        repositories.UserRepository
	teams        repositories.TeamRepository
	memberships  repositories.MembershipRepository
	resources    repositories.ResourceRepository
	entries      repositories.AccessEntryRepository
	resolver     accessResolver
	ledger       *QuotaLedger
	engine       treeEngine
	orchestrator *uploadOrchestrator
	describer    resourceDescriber
	pageSize     int
	maxDepth     int
	validate     *validator.Validate
}

type ResourceServiceOptions struct {
	PageSize         int
	OvercommitMargin float64
	// MaxDepth is the deepest level below a team root a resource may sit at.
	MaxDepth         int
	Upload           UploadOptions
}

func NewResourceService(repos repositories.Container, store objectstore.Store, opts ResourceServiceOptions) ResourceService {
	resolver := accessResolver{
		resources:   repos.Resources,
		entries:     repos.AccessEntries,
		memberships: repos.Memberships,
	}
	ledger := NewQuotaLedger(repos.Teams, opts.OvercommitMargin)
	describer := resourceDescriber{objects: repos.Objects, store: store, presignTTL: opts.Upload.PresignTTL}

	return &resourceService{
		txManager:   repos.TxManager,
		users:       repos.Users,
		teams:       repos.Teams,
		memberships: repos.Memberships,
		resources:   repos.Resources,
		entries:     repos.AccessEntries,
		resolver:    resolver,
		ledger:      ledger,
		engine: treeEngine{
			resolver:  resolver,
			teams:     repos.Teams,
			resources: repos.Resources,
			entries:   repos.AccessEntries,
			objects:   repos.Objects,
			ledger:    ledger,
			maxDepth:  opts.MaxDepth,
		},
		orchestrator: &uploadOrchestrator{
			txManager:   repos.TxManager,
			resolver:    resolver,
			resources:   repos.Resources,
			objects:     repos.Objects,
			sessions:    repos.UploadSessions,
			thumbnails:  repos.Thumbnails,
			commitLocks: repos.CommitLocks,
			ledger:      ledger,
			store:       store,
			describer:   describer,
			opts:        opts.Upload,
			now:         time.Now,
		},
		describer: describer,
		pageSize:  opts.PageSize,
		maxDepth:  opts.MaxDepth,
		validate:  validator.New(),
	}
}

// List returns the resources shared with userID through a readable entry.
func (s *resourceService) List(ctx context.Context, userID uint, cursor uint) (Page, error) {
	resources, err := s.resources.ListShared(ctx, nil, repositories.ListSharedInput{
		UserID: userID,
		Cursor: cursor,
		Limit:  s.pageSize,
	})
	if err != nil {
		return Page{}, newAppError(http.StatusInternalServerError, "Failed to list resources", err)
	}
	return paginate(resources, cursor), nil
}

// Retrieve returns a FolderListing for folders and a ResourceDetail for
// everything else.
func (s *resourceService) Retrieve(ctx context.Context, resourceID uint, userID uint, cursor uint) (interface{}, error) {
	resource, err := s.resources.GetByID(ctx, nil, resourceID)
	if err != nil {
		return nil, notFoundOr(err, "Resource not found")
	}
	grants, err := s.resolver.grants(ctx, nil, resourceID, userID)
	if err != nil {
		return nil, newAppError(http.StatusInternalServerError, "Failed to resolve permissions", err)
	}
	if !grants.Has(models.AccessRead) {
		return nil, newAppError(http.StatusForbidden, "You may not view this resource", nil)
	}

	if resource.IsFolder() {
		children, err := s.resources.ListChildren(ctx, nil, repositories.ListChildrenInput{
			ParentID: resource.ID,
			Cursor:   cursor,
			Limit:    s.pageSize,
		})
		if err != nil {
			return nil, newAppError(http.StatusInternalServerError, "Failed to list folder", err)
		}
		return FolderListing{ResourceSummary: resource.Summary(), Children: paginate(children, cursor)}, nil
	}

	detail, err := s.describer.describe(ctx, resource)
	if err != nil {
		return nil, newAppError(http.StatusInternalServerError, "Failed to describe resource", err)
	}
	return detail, nil
}

func (s *resourceService) Update(ctx context.Context, resourceID uint, userID uint, in UpdateInput) (UpdateResult, error) {
	target, err := s.resources.GetByID(ctx, nil, resourceID)
	if err != nil {
		return UpdateResult{}, notFoundOr(err, "Resource not found")
	}
	grants, err := s.resolver.grants(ctx, nil, resourceID, userID)
	if err != nil {
		return UpdateResult{}, newAppError(http.StatusInternalServerError, "Failed to resolve permissions", err)
	}
	if !grants.TeamHas(models.TeamWrite) {
		return UpdateResult{}, newAppError(http.StatusForbidden, "You may not modify resources that belong to this team", nil)
	}
	if !grants.Has(models.AccessWrite) {
		return UpdateResult{}, newAppError(http.StatusForbidden, "You may not modify this resource", nil)
	}
	if err := validateUpdate(target, in); err != nil {
		return UpdateResult{}, err
	}
	// mkdir and uploads into a folder add one level below it
	if target.IsFolder() && in.From == nil {
		if err := checkNesting(grants, 0, s.maxDepth); err != nil {
			return UpdateResult{}, err
		}
	}

	if in.Size != nil {
		if in.Name != "" {
			if taken, err := s.orchestrator.nameTaken(ctx, target.ID, in.Name); err != nil {
				return UpdateResult{}, newAppError(http.StatusInternalServerError, "Failed to check name", err)
			} else if taken {
				return UpdateResult{}, newAppError(http.StatusConflict, "A resource with the same name already exists", nil)
			}
		}
		ticket, err := s.orchestrator.Init(ctx, initUploadInput{
			UserID: userID,
			Team:   grants.Membership.Team,
			Target: target,
			Name:   in.Name,
			Size:   *in.Size,
		})
		if err != nil {
			return UpdateResult{}, err
		}
		return UpdateResult{Status: http.StatusAccepted, Body: ticket}, nil
	}

	var resultID uint
	status := http.StatusCreated
	err = s.txManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		team, err := s.teams.GetByID(ctx, tx, grants.Membership.TeamID)
		if err != nil {
			return err
		}
		grants.Membership.Team = team

		if in.From == nil {
			resultID, err = s.createFolder(ctx, tx, userID, team, target, in.Name)
			return err
		}
		resultID, status, err = s.engine.transfer(ctx, tx, transferInput{
			UserID:   userID,
			Target:   target,
			Grants:   grants,
			SourceID: *in.From,
			Name:     in.Name,
			Delete:   in.Delete,
		})
		return err
	})
	if err != nil {
		return UpdateResult{}, mutationError(err, "Failed to update resource")
	}

	resource, err := s.resources.GetByID(ctx, nil, resultID)
	if err != nil {
		return UpdateResult{}, newAppError(http.StatusInternalServerError, "Failed to load resource", err)
	}
	return UpdateResult{Status: status, Body: resource.Summary()}, nil
}

func validateUpdate(target models.Resource, in UpdateInput) error {
	if (in.Name != "") != target.IsFolder() {
		return newAppError(http.StatusBadRequest, "`name` is required for folders and invalid for files", nil)
	}
	if in.Name != "" && !validName(in.Name) {
		return newAppError(http.StatusBadRequest, "Invalid `name`", nil)
	}
	if in.Size != nil && in.From != nil {
		return newAppError(http.StatusBadRequest, "you must specify exactly one of `from` or `size`", nil)
	}
	if !target.IsFolder() && in.Size == nil && in.From == nil {
		return newAppError(http.StatusBadRequest, "you must specify exactly one of `from` or `size`", nil)
	}
	if in.Delete && in.From == nil {
		return newAppError(http.StatusBadRequest, "`delete` can only be used with `from`", nil)
	}
	if in.Size != nil && *in.Size <= 0 {
		return newAppError(http.StatusBadRequest, "`size` must be positive", nil)
	}
	return nil
}

func (s *resourceService) createFolder(ctx context.Context, tx *gorm.DB, userID uint, team models.Team, parent models.Resource, name string) (uint, error) {
	if err := s.ledger.CheckHard(team, repositories.Usage{Resources: 1}); err != nil {
		return 0, err
	}
	if _, err := s.resources.FindChild(ctx, tx, parent.ID, name); err == nil {
		return 0, newAppError(http.StatusConflict, "A resource with the same name already exists", nil)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	parentID := parent.ID
	folder := models.Resource{
		ParentID:   &parentID,
		Name:       name,
		Kind:       models.KindFolder,
		CreatedBy:  &userID,
		ModifiedBy: &userID,
	}
	if err := s.resources.Create(ctx, tx, &folder); err != nil {
		return 0, err
	}
	if err := s.ledger.Apply(ctx, tx, team.ID, repositories.Usage{Resources: 1}); err != nil {
		return 0, err
	}
	return folder.ID, nil
}

func (s *resourceService) Commit(ctx context.Context, resourceID uint, userID uint, params CommitParams, in CommitInput) (ResourceDetail, error) {
	return s.orchestrator.Commit(ctx, userID, resourceID, params, in)
}

func (s *resourceService) ExpireSession(ctx context.Context, session models.UploadSession) {
	s.orchestrator.Expire(ctx, session)
}

// Destroy deletes the resource and its descendants. Backing objects left
// without references are collected later.
func (s *resourceService) Destroy(ctx context.Context, resourceID uint, userID uint) error {
	resource, err := s.resources.GetByID(ctx, nil, resourceID)
	if err != nil {
		return notFoundOr(err, "Resource not found")
	}
	grants, err := s.resolver.grants(ctx, nil, resourceID, userID)
	if err != nil {
		return newAppError(http.StatusInternalServerError, "Failed to resolve permissions", err)
	}
	if !grants.TeamHas(models.TeamWrite) {
		return newAppError(http.StatusForbidden, "You may not delete resources belonging to this team", nil)
	}
	if resource.IsRoot() {
		return newAppError(http.StatusForbidden, "You may not delete a team root", nil)
	}
	if !grants.Inherited().Has(models.AccessWrite) {
		return newAppError(http.StatusForbidden, "You may not delete this resource", nil)
	}

	err = s.txManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		return s.engine.remove(ctx, tx, resource.ID)
	})
	if err != nil {
		return mutationError(err, "Failed to delete resource")
	}
	return nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newAppError(http.StatusNotFound, message, nil)
	}
	return newAppError(http.StatusInternalServerError, message, err)
}

// mutationError maps a failed transaction onto the error taxonomy.
func mutationError(err error, message string) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return newAppError(http.StatusConflict, "A resource with the same name already exists", err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newAppError(http.StatusConflict, "Resource was deleted", err)
	}
	return newAppError(http.StatusInternalServerError, message, err)
}
