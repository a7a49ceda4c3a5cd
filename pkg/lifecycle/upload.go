package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/asset"
	"github.com/lodehq/lode/pkg/filetype"
	"github.com/lodehq/lode/pkg/pathutil"
	"github.com/lodehq/lode/pkg/store/object"
)

// FileUpload is one incoming file.
type FileUpload struct {
	Filename string
	Content  []byte
}

// UploadRequest carries one primary file with optional associated files and
// the lifecycle TTLs in days.
type UploadRequest struct {
	Primary        FileUpload
	Associated     []FileUpload
	ArchiveTTLDays int
	DestroyTTLDays int
}

// Upload commits the primary file, fans out the associated files, and
// persists one version row. A byte-identical primary resolves to the latest
// active version instead of committing a new one.
func (c *Coordinator) Upload(ctx context.Context, username, branch string, req UploadRequest) (*asset.Version, error) {
	start := c.clock()
	if _, err := c.checkPermission(ctx, username, branch, asset.PermUpload); err != nil {
		return nil, err
	}

	archiveTTL := req.ArchiveTTLDays
	if archiveTTL <= 0 {
		archiveTTL = defaultArchiveTTLDays
	}
	destroyTTL := req.DestroyTTLDays
	if destroyTTL <= 0 {
		destroyTTL = defaultDestroyTTLDays
	}

	primaryFilename, err := pathutil.SanitizeFilename(req.Primary.Filename)
	if err != nil {
		return nil, err
	}
	info := filetype.Detect(primaryFilename, req.Primary.Content)
	assetPath, err := pathutil.SanitizePath(info.BasePath + "/" + pathutil.Stem(primaryFilename))
	if err != nil {
		return nil, err
	}
	primaryKey := assetPath + "/" + primaryFilename

	uploadTime := c.now()
	archiveDate := uploadTime.AddDate(0, 0, archiveTTL)
	destroyDate := archiveDate.AddDate(0, 0, destroyTTL)

	objectMeta := lifecycleMetadata(uploadTime, archiveDate, destroyDate)

	var prior *asset.Version
	result, err := c.objects.Upload(ctx, branch, primaryKey, req.Primary.Content, info.MIMEType, objectMeta)
	switch {
	case err == nil:
		// Fresh commit: stale sidecars from the previous version must not
		// leak into this one.
		if err := c.objects.DeleteAssociated(ctx, branch, assetPath, primaryFilename); err != nil {
			c.metrics.RecordUpload("error")
			return nil, err
		}
		c.metrics.RecordUpload("committed")

	case errors.Is(err, object.ErrNoChange):
		c.metrics.RecordUpload("nochange")
		logger.Info("primary file has no change compared to the latest version",
			"filename", primaryFilename, "asset_path", assetPath)
		prior, err = c.meta.GetLatestActive(ctx, assetPath, branch)
		if err != nil {
			if !asset.IsKind(err, asset.KindNotFound) {
				return nil, err
			}
			// Identical bytes at the object-store head but no active row.
			// An archived row under the head's version id stays archived;
			// flipping it back would be a backward transition.
			existing, lookupErr := c.meta.GetVersion(ctx, assetPath, result.VersionID, branch)
			if lookupErr == nil {
				c.audit(ctx, username, assetPath, result.VersionID, branch, "upload", false,
					fmt.Sprintf("Asset is %s", existing.Status))
				return nil, asset.E(asset.KindPreconditionFailed,
					"unchanged content matches version %s of %s which is %s",
					result.VersionID, assetPath, existing.Status)
			}
			if !asset.IsKind(lookupErr, asset.KindNotFound) {
				return nil, lookupErr
			}
			// No row at all: the head blob was committed but its metadata
			// never landed. Record it as a fresh active row.
			prior = nil
			logger.Warn("no metadata for unchanged primary, recreating version row",
				"asset_path", assetPath, "version_id", result.VersionID)
		}

	default:
		c.metrics.RecordUpload("error")
		logger.Error("failed to upload primary file",
			"filename", primaryFilename, "error", err)
		return nil, err
	}

	versionID := result.VersionID
	checksum := result.Checksum
	if prior != nil {
		versionID = prior.VersionID
		checksum = prior.Checksum
	}

	pairs := c.uploadAssociatedFiles(ctx, branch, assetPath, req.Associated, objectMeta, func(ctx context.Context, filename string) (string, bool) {
		latest, err := c.meta.GetLatestActive(ctx, assetPath, branch)
		if err != nil {
			return "", false
		}
		return latest.AssociatedFilenames.Get(filename)
	})

	var version *asset.Version
	if prior == nil {
		version = &asset.Version{
			AssetPath:           assetPath,
			VersionID:           versionID,
			PrimaryFilename:     primaryFilename,
			AssociatedFilenames: pairs,
			UploadDate:          uploadTime,
			ArchiveDate:         archiveDate,
			DestroyDate:         destroyDate,
			Branch:              branch,
			Status:              asset.StatusActive,
			Checksum:            checksum,
		}
	} else {
		prior.AssociatedFilenames = prior.AssociatedFilenames.Merge(pairs)
		version = prior
	}

	changeStatus, err := c.meta.PrimaryChanged(ctx, checksum, assetPath, branch)
	if err != nil {
		return nil, err
	}
	version.ChangeStatus = changeStatus

	if err := c.meta.SaveVersion(ctx, version); err != nil {
		logger.Error("failed to save metadata",
			"asset_path", assetPath, "version_id", versionID, "error", err)
		return nil, err
	}

	if err := c.vectors.Index(ctx, version, info.MediaClass); err != nil {
		logger.Warn("vector mirror index failed",
			"asset_path", assetPath, "version_id", versionID, "error", err)
	}

	c.audit(ctx, username, assetPath, versionID, branch, "upload", true, "")
	c.metrics.RecordOperationDuration("upload", time.Since(start).Seconds())
	logger.Info("uploaded asset",
		"asset_path", assetPath, "version_id", versionID, "username", username)
	return version, nil
}

// AddAssociatedFiles attaches sidecar files to an existing active version.
// targetVersionID selects a specific version; empty targets the latest
// active one.
func (c *Coordinator) AddAssociatedFiles(ctx context.Context, username, branch, assetPath string, files []FileUpload, targetVersionID string) (*asset.Version, error) {
	start := c.clock()
	if _, err := c.checkPermission(ctx, username, branch, asset.PermUpload); err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, asset.E(asset.KindInvalidInput, "no associated files provided")
	}

	assetPath, err := pathutil.SanitizePath(assetPath)
	if err != nil {
		return nil, err
	}

	var target *asset.Version
	if targetVersionID != "" {
		target, err = c.meta.GetVersion(ctx, assetPath, targetVersionID, branch)
	} else {
		target, err = c.meta.GetLatestActive(ctx, assetPath, branch)
	}
	if err != nil {
		return nil, err
	}

	if target.Status != asset.StatusActive {
		return nil, asset.E(asset.KindPreconditionFailed,
			"target asset version is not active (status: %s)", target.Status)
	}

	// NoChange on a sidecar reuses the version already recorded on the
	// target. Sidecars carry the target's lifecycle dates, not fresh ones.
	objectMeta := lifecycleMetadata(target.UploadDate, target.ArchiveDate, target.DestroyDate)
	pairs := c.uploadAssociatedFiles(ctx, branch, assetPath, files, objectMeta, func(_ context.Context, filename string) (string, bool) {
		return target.AssociatedFilenames.Get(filename)
	})
	if len(pairs) == 0 {
		return nil, asset.E(asset.KindStorage, "all associated file uploads failed")
	}

	target.AssociatedFilenames = target.AssociatedFilenames.Merge(pairs)

	if err := c.meta.SaveVersion(ctx, target); err != nil {
		logger.Error("failed to update metadata",
			"asset_path", assetPath, "error", err)
		return nil, err
	}

	if err := c.vectors.Index(ctx, target, mediaClassOf(assetPath)); err != nil {
		logger.Warn("vector mirror update failed",
			"asset_path", assetPath, "version_id", target.VersionID, "error", err)
	}

	c.audit(ctx, username, assetPath, target.VersionID, branch, "add_associated_files", true,
		fmt.Sprintf("Added %d associated files", len(pairs)))
	c.metrics.RecordOperationDuration("add_associated_files", time.Since(start).Seconds())
	logger.Info("added associated files",
		"asset_path", assetPath, "version_id", target.VersionID,
		"count", len(pairs), "username", username)
	return target, nil
}

// reuseFunc resolves the version id to keep for a filename whose upload
// came back NoChange.
type reuseFunc func(ctx context.Context, filename string) (string, bool)

// lifecycleMetadata is the per-object user metadata stamped on every stored
// blob, keeping the lifecycle dates readable from the object store alone.
func lifecycleMetadata(upload, archive, destroy time.Time) map[string]string {
	return map[string]string{
		"upload-date":  upload.UTC().Format(time.RFC3339),
		"archive-date": archive.UTC().Format(time.RFC3339),
		"destroy-date": destroy.UTC().Format(time.RFC3339),
	}
}

// uploadAssociatedFiles fans out sidecar uploads with bounded concurrency.
// Individual failures are logged and dropped; the returned list preserves
// input order.
func (c *Coordinator) uploadAssociatedFiles(ctx context.Context, branch, assetPath string, files []FileUpload, objectMeta map[string]string, reuse reuseFunc) asset.PairList {
	if len(files) == 0 {
		return nil
	}

	results := make([]*asset.FilePair, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.uploadConcurrency)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return nil
			}

			filename, err := pathutil.SanitizeFilename(file.Filename)
			if err != nil {
				logger.Warn("failed to upload associated file",
					"filename", file.Filename, "error", err)
				return nil
			}

			info := filetype.Detect(filename, file.Content)
			result, err := c.objects.Upload(ctx, branch, assetPath+"/"+filename, file.Content, info.MIMEType, objectMeta)
			switch {
			case err == nil:
				results[i] = &asset.FilePair{Filename: filename, VersionID: result.VersionID}
			case errors.Is(err, object.ErrNoChange):
				if versionID, ok := reuse(ctx, filename); ok {
					results[i] = &asset.FilePair{Filename: filename, VersionID: versionID}
				} else {
					logger.Warn("unchanged associated file has no recorded version",
						"filename", filename, "asset_path", assetPath)
				}
			default:
				logger.Warn("failed to upload associated file",
					"filename", filename, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var pairs asset.PairList
	for _, pair := range results {
		if pair != nil {
			pairs = append(pairs, *pair)
		}
	}
	return pairs
}
