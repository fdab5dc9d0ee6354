package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"teamdrive/logger"
	"teamdrive/models"
	"teamdrive/objectstore"
	"teamdrive/repositories"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// errThumbnailStale means the picture changed or vanished after the task was
// queued.
var errThumbnailStale = errors.New("thumbnail source is no longer current")

const thumbnailExt = ".jpg"

type ThumbnailService interface {
	// ProcessPending renders one batch of queued thumbnails and returns how
	// many succeeded.
	ProcessPending(ctx context.Context) (int, error)
}

type ThumbnailOptions struct {
	Width     int
	Height    int
	Quality   int
	BatchSize int
}

type thumbnailService struct {
	txManager TxManager
	tasks     repositories.ThumbnailTaskRepository
	teams     repositories.TeamRepository
	resources repositories.ResourceRepository
	objects   repositories.BackingObjectRepository
	ledger    *QuotaLedger
	store     objectstore.Store
	opts      ThumbnailOptions
	now       func() time.Time
}

func NewThumbnailService(repos repositories.Container, ledger *QuotaLedger, store objectstore.Store, opts ThumbnailOptions) ThumbnailService {
	return &thumbnailService{
		txManager: repos.TxManager,
		tasks:     repos.Thumbnails,
		teams:     repos.Teams,
		resources: repos.Resources,
		objects:   repos.Objects,
		ledger:    ledger,
		store:     store,
		opts:      opts,
		now:       time.Now,
	}
}

var defaultThumbnailService ThumbnailService

func SetThumbnailService(svc ThumbnailService) {
	defaultThumbnailService = svc
}

// StartThumbnailWorkers polls for queued thumbnails every interval until ctx
// is done.
func StartThumbnailWorkers(ctx context.Context, interval time.Duration) {
	svc := defaultThumbnailService
	if svc == nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := svc.ProcessPending(ctx); err != nil {
					logger.Error("thumbnail pass failed", "error", err)
				}
			}
		}
	}()
}

func (s *thumbnailService) ProcessPending(ctx context.Context) (int, error) {
	tasks, err := s.tasks.ListPending(ctx, nil, s.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, task := range tasks {
		err := s.process(ctx, task)
		if err == nil || errors.Is(err, errThumbnailStale) {
			if err := s.tasks.MarkDone(ctx, nil, task.ID, s.now()); err != nil {
				return done, err
			}
			if err == nil {
				done++
			}
			continue
		}
		logger.Warn("thumbnail generation failed", "task", task.ID, "resource", task.ResourceID, "error", err)
		if err := s.tasks.MarkFailed(ctx, nil, task.ID, err.Error()); err != nil {
			return done, err
		}
	}
	return done, nil
}

func (s *thumbnailService) process(ctx context.Context, task models.ThumbnailTask) error {
	source, err := s.objects.GetByID(ctx, nil, task.ObjectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errThumbnailStale
	}
	if err != nil {
		return err
	}

	img, err := s.fetch(ctx, source)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	thumb := imaging.Fit(img, s.opts.Width, s.opts.Height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(s.opts.Quality)); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}

	bucket := s.store.Bucket()
	key := "thumbnails/" + uuid.NewString() + thumbnailExt
	size := int64(buf.Len())
	if err := s.store.Put(ctx, bucket, key, bytes.NewReader(buf.Bytes()), size, getMimeType(thumbnailExt)); err != nil {
		return err
	}

	err = s.txManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		return s.attach(ctx, tx, task, models.BackingObject{Bucket: bucket, Key: key, Size: size},
			bounds.Dx(), bounds.Dy(), thumb.Bounds().Dx(), thumb.Bounds().Dy())
	})
	if err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), bucket, key); delErr != nil {
			logger.Warn("failed to delete orphaned thumbnail", "key", key, "error", delErr)
		}
		return err
	}
	return nil
}

func (s *thumbnailService) fetch(ctx context.Context, obj models.BackingObject) (image.Image, error) {
	body, err := s.store.Get(ctx, obj.Bucket, obj.Key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, errThumbnailStale
		}
		return nil, err
	}
	defer body.Close()

	img, err := imaging.Decode(body, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode picture: %w", err)
	}
	return img, nil
}

// attach records the thumbnail as a picture variant of the task's resource
// and stores the source dimensions on its original descriptor.
func (s *thumbnailService) attach(ctx context.Context, tx *gorm.DB, task models.ThumbnailTask, thumb models.BackingObject, width, height, thumbWidth, thumbHeight int) error {
	resource, err := s.resources.GetByID(ctx, tx, task.ResourceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errThumbnailStale
	}
	if err != nil {
		return err
	}
	if resource.Kind != models.KindPicture {
		return errThumbnailStale
	}
	meta, err := resource.OriginalMeta()
	if err != nil {
		return err
	}
	original, ok := meta.(models.PictureMeta)
	if !ok || original.ID != task.ObjectID {
		return errThumbnailStale
	}
	variants, err := resource.VariantMetas()
	if err != nil {
		return err
	}

	team, err := s.teams.GetByResource(ctx, tx, resource.ID)
	if err != nil {
		return err
	}
	thumb.TeamID = team.ID
	if err := s.objects.Create(ctx, tx, &thumb); err != nil {
		return err
	}
	if err := s.objects.Link(ctx, tx, resource.ID, []uint{thumb.ID}); err != nil {
		return err
	}

	original.Width = width
	original.Height = height
	variants = append(variants, models.PictureMeta{
		FileMeta: models.FileMeta{ID: thumb.ID},
		Width:    thumbWidth,
		Height:   thumbHeight,
	})
	rawOriginal, err := models.EncodeMeta(models.KindPicture, original)
	if err != nil {
		return err
	}
	rawVariants, err := models.EncodeMetaList(models.KindPicture, variants)
	if err != nil {
		return err
	}
	err = s.resources.UpdateByID(ctx, tx, resource.ID, map[string]interface{}{
		"original": rawOriginal,
		"variants": rawVariants,
	})
	if err != nil {
		return err
	}
	return s.ledger.Apply(ctx, tx, team.ID, repositories.Usage{Storage: thumb.Size})
}
