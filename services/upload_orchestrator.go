package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"teamdrive/config"
	"teamdrive/logger"
	"teamdrive/models"
	"teamdrive/objectstore"
	"teamdrive/repositories"
	"teamdrive/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UploadOptions struct {
	SigningSecret  []byte
	CommitBaseURL  string
	MinPartSize    int64
	MaxParts       int64
	PresignTTL     time.Duration
	SessionTTL     time.Duration
	CommitLockTTL  time.Duration
	ThumbnailTries int
	// MaxDepth bounds how far below its team root a new file may be placed.
	MaxDepth       int
}

func UploadOptionsFromConfig(cfg *config.Config) UploadOptions {
	return UploadOptions{
		SigningSecret:  []byte(cfg.Upload.SigningSecret),
		CommitBaseURL:  cfg.Upload.CommitBaseURL,
		MinPartSize:    cfg.ObjectStore.MinPartSize,
		MaxParts:       cfg.ObjectStore.MaxParts,
		PresignTTL:     cfg.ObjectStore.PresignTTL(),
		SessionTTL:     cfg.Upload.SessionTTL(),
		CommitLockTTL:  cfg.Upload.CommitLockTTL(),
		ThumbnailTries: cfg.Thumbnail.RetryMax,
		MaxDepth:       cfg.Tree.MaxDepth,
	}
}

// PartRange is the byte range [Start, End) of the 1-based part Number.
type PartRange struct {
	Number int
	Start  int64
	End    int64
}

// ComputeParts splits size bytes into contiguous parts of partSize bytes,
// the last one possibly shorter. partSize is the smallest part size that
// keeps the count within maxParts, but never below minPart.
func ComputeParts(size, minPart, maxParts int64) (int64, []PartRange) {
	if size <= 0 {
		return minPart, nil
	}
	partSize := (size + maxParts - 1) / maxParts
	if partSize < minPart {
		partSize = minPart
	}

	parts := make([]PartRange, 0, (size+partSize-1)/partSize)
	for start := int64(0); start < size; start += partSize {
		end := start + partSize
		if end > size {
			end = size
		}
		parts = append(parts, PartRange{Number: len(parts) + 1, Start: start, End: end})
	}
	return partSize, parts
}

type UploadPart struct {
	URL   string `json:"url"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

// UploadTicket is handed to the client when an upload starts: one signed
// write URL per part and the signed commit URL.
type UploadTicket struct {
	Parts  []UploadPart `json:"parts"`
	Commit string       `json:"commit"`
}

// CommitParams are the signed query parameters of a commit URL.
type CommitParams struct {
	SessionID string
	FolderID  uint
	Name      string
	Size      int64
	Signature string
}

// CommitInput is the commit request body. Name and Folder are only honoured
// to resolve a conflict that exists at commit time.
type CommitInput struct {
	Parts  []string `json:"parts"`
	Name   string   `json:"name"`
	Folder *uint    `json:"folder"`
}

type initUploadInput struct {
	UserID uint
	Team   models.Team
	// Target is the destination folder, or the file whose contents are
	// replaced when Name is empty.
	Target models.Resource
	Name   string
	Size   int64
}

type uploadOrchestrator struct {
	txManager   TxManager
	resolver    accessResolver
	resources   repositories.ResourceRepository
	objects     repositories.BackingObjectRepository
	sessions    repositories.UploadSessionRepository
	thumbnails  repositories.ThumbnailTaskRepository
	commitLocks repositories.CommitLockRepository
	ledger      *QuotaLedger
	store       objectstore.Store
	describer   resourceDescriber
	opts        UploadOptions
	now         func() time.Time
}

// Init reserves one resource slot, opens the external multipart session and
// returns the signed part and commit URLs.
func (o *uploadOrchestrator) Init(ctx context.Context, in initUploadInput) (UploadTicket, error) {
	if in.Size <= 0 {
		return UploadTicket{}, newAppError(http.StatusBadRequest, "`size` must be positive", nil)
	}
	if err := o.ledger.CheckHard(in.Team, repositories.Usage{Resources: 1, Storage: in.Size}); err != nil {
		return UploadTicket{}, err
	}

	partSize, ranges := ComputeParts(in.Size, o.opts.MinPartSize, o.opts.MaxParts)
	bucket := o.store.Bucket()
	key := "objects/" + uuid.NewString()

	fileName := in.Name
	if fileName == "" {
		fileName = in.Target.Name
	}
	uploadID, err := o.store.CreateMultipart(ctx, bucket, key, getMimeType(filepath.Ext(fileName)))
	if err != nil {
		return UploadTicket{}, newUpstreamError("", "Failed to start upload", err)
	}

	now := o.now()
	session := models.UploadSession{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		TeamID:           in.Team.ID,
		TargetID:         in.Target.ID,
		Name:             in.Name,
		Size:             in.Size,
		Bucket:           bucket,
		Key:              key,
		ExternalUploadID: uploadID,
		PartSize:         partSize,
		PartCount:        len(ranges),
		Status:           models.UploadInitiated,
		ExpiresAt:        now.Add(o.opts.SessionTTL),
	}
	err = o.txManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := o.sessions.Create(ctx, tx, &session); err != nil {
			return err
		}
		return o.ledger.Apply(ctx, tx, in.Team.ID, repositories.Usage{Resources: 1})
	})
	if err != nil {
		o.abort(ctx, session)
		return UploadTicket{}, newAppError(http.StatusInternalServerError, "Failed to start upload", err)
	}

	ticket := UploadTicket{Parts: make([]UploadPart, 0, len(ranges))}
	for _, part := range ranges {
		signed, err := o.store.PresignPart(ctx, bucket, key, uploadID, part.Number, o.opts.PresignTTL)
		if err != nil {
			o.reject(ctx, session)
			return UploadTicket{}, newUpstreamError("", "Failed to sign upload part", err)
		}
		ticket.Parts = append(ticket.Parts, UploadPart{URL: signed, Start: part.Start, End: part.End})
	}
	ticket.Commit = o.commitURL(in.UserID, session)

	logger.Debugf("upload session %s opened for user %d: %d bytes in %d parts", session.ID, in.UserID, in.Size, len(ranges))
	return ticket, nil
}

func (o *uploadOrchestrator) commitURL(userID uint, session models.UploadSession) string {
	claims := utils.CommitClaims{
		UserID:    userID,
		SessionID: session.ID,
		FolderID:  session.TargetID,
		Name:      session.Name,
		Size:      session.Size,
	}
	query := url.Values{}
	query.Set("session", session.ID)
	query.Set("folder", strconv.FormatUint(uint64(session.TargetID), 10))
	query.Set("name", session.Name)
	query.Set("size", strconv.FormatInt(session.Size, 10))
	query.Set("signature", utils.SignCommit(o.opts.SigningSecret, claims))
	return fmt.Sprintf("%s/api/files/%d/commit?%s", o.opts.CommitBaseURL, session.TargetID, query.Encode())
}

// Commit completes the external upload and creates or replaces the resource
// it was started for.
func (o *uploadOrchestrator) Commit(ctx context.Context, userID uint, targetID uint, params CommitParams, in CommitInput) (ResourceDetail, error) {
	claims := utils.CommitClaims{
		UserID:    userID,
		SessionID: params.SessionID,
		FolderID:  params.FolderID,
		Name:      params.Name,
		Size:      params.Size,
	}
	if targetID != params.FolderID || !utils.VerifyCommit(o.opts.SigningSecret, claims, params.Signature) {
		return ResourceDetail{}, newAppError(http.StatusUnauthorized, "Invalid request signature", nil)
	}

	session, err := o.sessions.GetByID(ctx, nil, params.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ResourceDetail{}, newAppError(http.StatusBadRequest, "Unknown upload session", nil)
		}
		return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to load upload session", err)
	}
	if session.UserID != userID || session.TargetID != params.FolderID || session.Name != params.Name || session.Size != params.Size {
		return ResourceDetail{}, newAppError(http.StatusUnauthorized, "Invalid request signature", nil)
	}
	if session.Status.Terminal() {
		return ResourceDetail{}, newAppError(http.StatusBadRequest, "Upload session is closed", nil)
	}
	if o.now().After(session.ExpiresAt) {
		o.Expire(ctx, session)
		return ResourceDetail{}, newUpstreamError(ReasonSessionExpired, "Session expired. Please retry the upload", nil)
	}

	locked, err := o.commitLocks.Acquire(ctx, session.ID, o.opts.CommitLockTTL)
	if err != nil {
		return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to lock upload session", err)
	}
	if !locked {
		return ResourceDetail{}, newAppError(http.StatusConflict, "Upload is already being committed", nil)
	}
	defer func() {
		if err := o.commitLocks.Release(context.WithoutCancel(ctx), session.ID); err != nil {
			logger.Warn("failed to release commit lock", "session", session.ID, "error", err)
		}
	}()

	if _, err := o.sessions.Transition(ctx, nil, session.ID, []models.UploadStatus{models.UploadInitiated}, models.UploadCommitRequested); err != nil {
		return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to update upload session", err)
	}

	// destination, falling back to the override folder when the signed one
	// is gone
	name := session.Name
	target, err := o.resources.GetByID(ctx, nil, session.TargetID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to load destination", err)
		}
		if in.Name == "" || in.Folder == nil {
			return ResourceDetail{}, newAppError(http.StatusConflict, "Resource was deleted", nil)
		}
		target, err = o.resources.GetByID(ctx, nil, *in.Folder)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ResourceDetail{}, newAppError(http.StatusConflict, "Resource was deleted", nil)
			}
			return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to load destination", err)
		}
		if !target.IsFolder() {
			return ResourceDetail{}, newAppError(http.StatusBadRequest, "`folder` must be a folder", nil)
		}
		name = in.Name
	}

	grants, err := o.resolver.grants(ctx, nil, target.ID, userID)
	if err != nil {
		return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to resolve permissions", err)
	}
	if !grants.TeamHas(models.TeamWrite) {
		o.reject(ctx, session)
		return ResourceDetail{}, newAppError(http.StatusForbidden, "You may not modify resources that belong to this team", nil)
	}
	if !grants.Has(models.AccessWrite) {
		o.reject(ctx, session)
		return ResourceDetail{}, newAppError(http.StatusForbidden, "You may not modify this resource", nil)
	}
	// the folder may have been moved deeper since the session was opened
	if name != "" {
		if err := checkNesting(grants, 0, o.opts.MaxDepth); err != nil {
			o.reject(ctx, session)
			return ResourceDetail{}, err
		}
	}

	if name != "" {
		taken, err := o.nameTaken(ctx, target.ID, name)
		if err != nil {
			return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to check name", err)
		}
		if taken {
			free := false
			if in.Name != "" && in.Name != name {
				if !validName(in.Name) {
					return ResourceDetail{}, newAppError(http.StatusBadRequest, "Invalid `name`", nil)
				}
				taken, err := o.nameTaken(ctx, target.ID, in.Name)
				if err != nil {
					return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to check name", err)
				}
				free = !taken
			}
			if !free {
				return ResourceDetail{}, newAppError(http.StatusConflict, "A resource with the same name already exists", nil)
			}
			name = in.Name
		}
	}

	if len(in.Parts) == 0 {
		return ResourceDetail{}, newAppError(http.StatusBadRequest, "`parts` is required", nil)
	}
	if len(in.Parts) > session.PartCount {
		return ResourceDetail{}, newAppError(http.StatusBadRequest, "`parts` has more entries than the upload", nil)
	}

	// the reservation stays with the session's team; a redirect into another
	// team has to fit there as well
	team := grants.Membership.Team
	delta := repositories.Usage{Storage: session.Size}
	if team.ID != session.TeamID {
		delta.Resources = 1
	}
	if err := o.ledger.CheckRelaxed(team, delta); err != nil {
		o.reject(ctx, session)
		return ResourceDetail{}, err
	}

	completed := make([]objectstore.CompletedPart, len(in.Parts))
	for i, etag := range in.Parts {
		completed[i] = objectstore.CompletedPart{Number: i + 1, ETag: etag}
	}
	if err := o.store.CompleteMultipart(ctx, session.Bucket, session.Key, session.ExternalUploadID, completed); err != nil {
		switch {
		case errors.Is(err, objectstore.ErrSessionExpired):
			o.Expire(ctx, session)
			return ResourceDetail{}, newUpstreamError(ReasonSessionExpired, "Session expired. Please retry the upload", err)
		case errors.Is(err, objectstore.ErrInvalidPart):
			return ResourceDetail{}, newUpstreamError(ReasonInvalidPart, "Invalid ETag value found in `parts`", err)
		}
		logger.Error("unhandled error while committing upload", "session", session.ID, "error", err)
		return ResourceDetail{}, newUpstreamError("", "Internal server error", err)
	}

	var resourceID uint
	err = o.txManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		resourceID, err = o.persist(ctx, tx, session, team, target, name, delta)
		return err
	})
	if err != nil {
		// the object is complete but nothing points at it
		if delErr := o.store.Delete(context.WithoutCancel(ctx), session.Bucket, session.Key); delErr != nil {
			logger.Warn("failed to delete orphaned object", "bucket", session.Bucket, "key", session.Key, "error", delErr)
		}
		var appErr *AppError
		if errors.As(err, &appErr) {
			return ResourceDetail{}, appErr
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ResourceDetail{}, newAppError(http.StatusConflict, "A resource with the same name already exists", err)
		}
		return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to save upload", err)
	}

	resource, err := o.resources.GetByID(ctx, nil, resourceID)
	if err != nil {
		return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to load resource", err)
	}
	detail, err := o.describer.describe(ctx, resource)
	if err != nil {
		return ResourceDetail{}, newAppError(http.StatusInternalServerError, "Failed to describe resource", err)
	}
	return detail, nil
}

// persist records a completed upload. It creates a child of target named
// name, or replaces target's contents when name is empty.
func (o *uploadOrchestrator) persist(ctx context.Context, tx *gorm.DB, session models.UploadSession, team models.Team, target models.Resource, name string, delta repositories.Usage) (uint, error) {
	object := models.BackingObject{
		TeamID: team.ID,
		Bucket: session.Bucket,
		Key:    session.Key,
		Size:   session.Size,
	}
	if err := o.objects.Create(ctx, tx, &object); err != nil {
		return 0, err
	}

	fileName := name
	if fileName == "" {
		fileName = target.Name
	}
	kind := detectKind(fileName)
	original, err := models.EncodeMeta(kind, metaFor(kind, object.ID))
	if err != nil {
		return 0, err
	}
	variants, err := models.EncodeMetaList(kind, nil)
	if err != nil {
		return 0, err
	}

	uid := session.UserID
	resourceID := target.ID
	if name != "" {
		parentID := target.ID
		resource := models.Resource{
			ParentID:   &parentID,
			Name:       name,
			Kind:       kind,
			CreatedBy:  &uid,
			ModifiedBy: &uid,
			Original:   original,
			Variants:   variants,
		}
		if err := o.resources.Create(ctx, tx, &resource); err != nil {
			return 0, err
		}
		resourceID = resource.ID
	} else {
		released, err := o.objects.Unlink(ctx, tx, []uint{target.ID})
		if err != nil {
			return 0, err
		}
		if err := releaseObjects(ctx, tx, o.ledger, released); err != nil {
			return 0, err
		}
		err = o.resources.UpdateByID(ctx, tx, target.ID, map[string]interface{}{
			"kind":        kind,
			"original":    original,
			"variants":    variants,
			"modified_by": uid,
		})
		if err != nil {
			return 0, err
		}
	}

	if err := o.objects.Link(ctx, tx, resourceID, []uint{object.ID}); err != nil {
		return 0, err
	}

	// a replace or a redirect into another team gives the reserved slot back
	if name == "" || team.ID != session.TeamID {
		if err := o.ledger.Apply(ctx, tx, session.TeamID, repositories.Usage{Resources: -1}); err != nil {
			return 0, err
		}
	}
	if err := o.ledger.Apply(ctx, tx, team.ID, delta); err != nil {
		return 0, err
	}

	ok, err := o.sessions.Transition(ctx, tx, session.ID, []models.UploadStatus{models.UploadCommitRequested}, models.UploadCommitted)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, newAppError(http.StatusConflict, "Upload session changed while committing", nil)
	}

	if kind == models.KindPicture {
		task := models.ThumbnailTask{ResourceID: resourceID, ObjectID: object.ID, MaxRetries: o.opts.ThumbnailTries}
		if err := o.thumbnails.Create(ctx, tx, &task); err != nil {
			return 0, err
		}
	}
	return resourceID, nil
}

func (o *uploadOrchestrator) nameTaken(ctx context.Context, parentID uint, name string) (bool, error) {
	_, err := o.resources.FindChild(ctx, nil, parentID, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// reject closes a session that can never be committed and gives back its
// reservation.
func (o *uploadOrchestrator) reject(ctx context.Context, session models.UploadSession) {
	o.closeSession(ctx, session, models.UploadRejected)
}

// Expire closes a session whose external upload is gone or past its
// deadline and gives back its reservation.
func (o *uploadOrchestrator) Expire(ctx context.Context, session models.UploadSession) {
	o.closeSession(ctx, session, models.UploadExpired)
}

func (o *uploadOrchestrator) closeSession(ctx context.Context, session models.UploadSession, status models.UploadStatus) {
	open := []models.UploadStatus{models.UploadInitiated, models.UploadCommitRequested}
	err := o.txManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		changed, err := o.sessions.Transition(ctx, tx, session.ID, open, status)
		if err != nil || !changed {
			return err
		}
		return o.ledger.Apply(ctx, tx, session.TeamID, repositories.Usage{Resources: -1})
	})
	if err != nil {
		logger.Error("failed to close upload session", "session", session.ID, "status", status, "error", err)
	}
	o.abort(ctx, session)
}

// abort cancels the external session. The store reclaims abandoned sessions
// on its own, so failures are only logged.
func (o *uploadOrchestrator) abort(ctx context.Context, session models.UploadSession) {
	err := o.store.AbortMultipart(context.WithoutCancel(ctx), session.Bucket, session.Key, session.ExternalUploadID)
	if err != nil {
		logger.Warn("failed to abort multipart upload", "session", session.ID, "key", session.Key, "error", err)
	}
}
