package files

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
	"github.com/fieldwork/fieldwork-backend/internal/projects/repository"
)

// Uploader pushes attachment bytes to the object store and records annex
// metadata: the object key, a cached thumbnail and a presigned URL with
// its expiry.
type Uploader struct {
	store      ObjectStore
	annexes    *repository.AnnexRepository
	presignTTL time.Duration
}

func NewUploader(store ObjectStore, annexes *repository.AnnexRepository, presignTTL time.Duration) *Uploader {
	return &Uploader{
		store:      store,
		annexes:    annexes,
		presignTTL: presignTTL,
	}
}

// UploadAnnex stores one attachment for a project. Object-store failures
// surface as storage errors; thumbnail failures fall back to the
// original bytes inside Thumbnail.
func (u *Uploader) UploadAnnex(ctx context.Context, projectID string, att domain.Attachment) (*domain.Annex, error) {
	ext := strings.ToLower(path.Ext(att.Name))
	if ext == "" {
		ext = ".jpg"
	}
	key := fmt.Sprintf("image/%s%s", uuid.New().String(), ext)

	if err := u.store.Put(ctx, key, att.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	url, err := u.store.PresignedGet(ctx, key, u.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	expire := time.Now().Add(u.presignTTL)
	annex := &domain.Annex{
		ProjectID:  projectID,
		Name:       att.Name,
		Path:       key,
		Thumbnail:  Thumbnail(att.Data),
		AccessURL:  url,
		ExpireTime: &expire,
	}
	if err := u.annexes.Add(ctx, annex); err != nil {
		return nil, err
	}
	return annex, nil
}

// RefreshURL re-derives the presigned URL for an annex whose cached one
// has gone stale.
func (u *Uploader) RefreshURL(ctx context.Context, projectID, annexID string) (string, error) {
	annex, err := u.annexes.FindByID(ctx, projectID, annexID)
	if err != nil {
		return "", err
	}

	url, err := u.store.PresignedGet(ctx, annex.Path, u.presignTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	expire := sql.NullTime{Time: time.Now().Add(u.presignTTL), Valid: true}
	if err := u.annexes.SetAccessURL(ctx, annex.ID, url, expire); err != nil {
		return "", err
	}
	return url, nil
}

// DeleteAnnex drops one annex's metadata. The stored object is left in
// place; the bucket has its own retention.
func (u *Uploader) DeleteAnnex(ctx context.Context, projectID, annexID string) error {
	annex, err := u.annexes.FindByID(ctx, projectID, annexID)
	if err != nil {
		return err
	}
	return u.annexes.Delete(ctx, annex.ID)
}
