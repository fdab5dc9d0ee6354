package services

import (
	"time"

	"teamdrive/config"
	"teamdrive/objectstore"
	"teamdrive/repositories"
)

type Container struct {
	Users      UserService
	Resources  ResourceService
	Teams      TeamService
	Cleanup    CleanupService
	Thumbnails ThumbnailService
}

func NewContainer(repos repositories.Container, store objectstore.Store, cfg *config.Config) *Container {
	ledger := NewQuotaLedger(repos.Teams, cfg.Quota.OvercommitMargin)
	resources := NewResourceService(repos, store, ResourceServiceOptions{
		PageSize:         cfg.Pagination.PageSize,
		OvercommitMargin: cfg.Quota.OvercommitMargin,
		MaxDepth:         cfg.Tree.MaxDepth,
		Upload:           UploadOptionsFromConfig(cfg),
	})

	container := &Container{
		Users:     NewUserService(repos.Users, cfg.JWT.Secret, time.Duration(cfg.JWT.ExpireHours)*time.Hour),
		Resources: resources,
		Teams: NewTeamService(repos, ledger, TeamDefaults{
			MemberQuota:   cfg.Quota.DefaultMemberQuota,
			ResourceQuota: cfg.Quota.DefaultResourceQuota,
			StorageQuota:  cfg.Quota.DefaultStorageQuota,
		}),
		Cleanup: NewCleanupService(repos, resources, store, cfg.Cleanup.BatchSize),
		Thumbnails: NewThumbnailService(repos, ledger, store, ThumbnailOptions{
			Width:     cfg.Thumbnail.Width,
			Height:    cfg.Thumbnail.Height,
			Quality:   cfg.Thumbnail.Quality,
			BatchSize: cfg.Thumbnail.BatchSize,
		}),
	}
	SetCleanupService(container.Cleanup)
	SetThumbnailService(container.Thumbnails)
	return container
}
