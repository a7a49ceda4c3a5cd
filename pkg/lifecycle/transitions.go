package lifecycle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/asset"
	"github.com/lodehq/lode/pkg/pathutil"
)

// Archive polling bounds. Reads after the status update may lag on a
// replicated metadata store; clients expect the transition to be visible
// when the call returns.
const (
	archivePollInterval = 50 * time.Millisecond
	archivePollDeadline = 2 * time.Second
)

// Archive moves an active version to archived.
func (c *Coordinator) Archive(ctx context.Context, username, branch, assetPath, versionID string) (*asset.Version, error) {
	if _, err := c.checkPermission(ctx, username, branch, asset.PermArchive); err != nil {
		return nil, err
	}
	return c.archiveVersion(ctx, username, branch, assetPath, versionID, "manual")
}

// archiveVersion is the permission-free core shared with the scheduler.
func (c *Coordinator) archiveVersion(ctx context.Context, username, branch, assetPath, versionID, trigger string) (*asset.Version, error) {
	assetPath, err := pathutil.SanitizePath(assetPath)
	if err != nil {
		return nil, err
	}

	version, err := c.meta.GetVersion(ctx, assetPath, versionID, branch)
	if err != nil {
		if asset.IsKind(err, asset.KindNotFound) {
			c.audit(ctx, username, assetPath, versionID, branch, "archive", false, "Asset not found")
		}
		return nil, err
	}
	if version.Status != asset.StatusActive {
		c.audit(ctx, username, assetPath, versionID, branch, "archive", false,
			fmt.Sprintf("Asset is %s", version.Status))
		return nil, asset.E(asset.KindPreconditionFailed,
			"asset %s/%s is already %s", assetPath, versionID, version.Status)
	}

	if err := c.meta.UpdateStatus(ctx, assetPath, versionID, branch, asset.StatusArchived); err != nil {
		return nil, err
	}

	if err := c.vectors.UpdateStatus(ctx, assetPath, versionID, branch, mediaClassOf(assetPath), asset.StatusArchived); err != nil {
		logger.Error("vector mirror archive failed",
			"asset_path", assetPath, "version_id", versionID, "error", err)
	}

	c.audit(ctx, username, assetPath, versionID, branch, "archive", true, "")
	c.metrics.RecordTransition("archive", trigger)
	logger.Info("archived asset",
		"asset_path", assetPath, "version_id", versionID, "username", username)

	return c.waitArchived(ctx, assetPath, versionID, branch, version)
}

// waitArchived polls until the archived status is readable, bounded by
// archivePollDeadline. On timeout it returns the last observed record.
func (c *Coordinator) waitArchived(ctx context.Context, assetPath, versionID, branch string, last *asset.Version) (*asset.Version, error) {
	deadline := time.NewTimer(archivePollDeadline)
	defer deadline.Stop()
	tick := time.NewTicker(archivePollInterval)
	defer tick.Stop()

	for {
		version, err := c.meta.GetVersion(ctx, assetPath, versionID, branch)
		if err == nil {
			last = version
			if version.Status == asset.StatusArchived {
				return version, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			logger.Warn("archived status not visible before deadline",
				"asset_path", assetPath, "version_id", versionID)
			return last, nil
		case <-tick.C:
		}
	}
}

// Destroy removes an archived version: blobs when it is the object-store
// head, then the metadata row and its audit trail, then the mirror entry.
func (c *Coordinator) Destroy(ctx context.Context, username, branch, assetPath, versionID string) (*asset.Version, error) {
	if _, err := c.checkPermission(ctx, username, branch, asset.PermDestroy); err != nil {
		return nil, err
	}
	return c.destroyVersion(ctx, username, branch, assetPath, versionID, "manual")
}

func (c *Coordinator) destroyVersion(ctx context.Context, username, branch, assetPath, versionID, trigger string) (*asset.Version, error) {
	assetPath, err := pathutil.SanitizePath(assetPath)
	if err != nil {
		return nil, err
	}

	version, err := c.meta.GetVersion(ctx, assetPath, versionID, branch)
	if err != nil {
		if asset.IsKind(err, asset.KindNotFound) {
			c.audit(ctx, username, assetPath, versionID, branch, "destroy", false, "Asset not found")
		}
		return nil, err
	}
	if version.Status != asset.StatusArchived {
		c.audit(ctx, username, assetPath, versionID, branch, "destroy", false,
			fmt.Sprintf("Asset is %s", version.Status))
		return nil, asset.E(asset.KindPreconditionFailed,
			"asset %s/%s is not archived", assetPath, versionID)
	}

	// Blob deletion only applies at the head: the immutable store cannot
	// remove historical commits, retention reaps those.
	head, err := c.meta.GetHeadVersion(ctx, assetPath, branch)
	if err == nil && head.VersionID == version.VersionID {
		primaryKey := assetPath + "/" + version.PrimaryFilename
		if err := c.objects.Delete(ctx, branch, primaryKey); err != nil {
			logger.Error("failed to delete primary file", "path", primaryKey, "error", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.uploadConcurrency)
		for _, pair := range version.AssociatedFilenames {
			if pair.Filename == "" {
				continue
			}
			g.Go(func() error {
				path := assetPath + "/" + pair.Filename
				if err := c.objects.Delete(gctx, branch, path); err != nil {
					logger.Error("failed to delete associated file", "path", path, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	} else {
		logger.Info("version is not the object-store head, leaving blobs to retention",
			"asset_path", assetPath, "version_id", versionID)
	}

	if err := c.meta.DeleteMetadata(ctx, assetPath, versionID, branch); err != nil {
		return nil, err
	}

	if err := c.vectors.Delete(ctx, assetPath, versionID, branch, mediaClassOf(assetPath)); err != nil {
		logger.Error("vector mirror delete failed",
			"asset_path", assetPath, "version_id", versionID, "error", err)
	}

	c.audit(ctx, username, assetPath, versionID, branch, "destroy", true, "")
	c.metrics.RecordTransition("destroy", trigger)
	logger.Info("destroyed asset",
		"asset_path", assetPath, "version_id", versionID, "username", username)

	version.Status = asset.StatusDestroyed
	return version, nil
}

// AutoArchive archives every active version whose planned archive date has
// passed. Individual failures are logged and skipped, which keeps the job
// idempotent: a re-run sees already-archived rows fail the precondition.
func (c *Coordinator) AutoArchive(ctx context.Context) ([]*asset.Version, error) {
	due, err := c.meta.ListDueForArchive(ctx, c.now())
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		logger.Info("no assets to archive")
		return nil, nil
	}

	var archived []*asset.Version
	for _, version := range due {
		result, err := c.archiveVersion(ctx, schedulerUser, version.Branch, version.AssetPath, version.VersionID, "auto")
		if err != nil {
			logger.Info("auto-archive failed",
				"asset_path", version.AssetPath, "version_id", version.VersionID, "error", err)
			continue
		}
		archived = append(archived, result)
	}
	return archived, nil
}

// AutoDestroy prunes the audit log past its retention, then destroys every
// archived version whose planned destroy date has passed.
func (c *Coordinator) AutoDestroy(ctx context.Context) ([]*asset.Version, error) {
	cutoff := c.now().AddDate(0, 0, -c.auditRetentionDays)
	if removed, err := c.meta.CleanupLogs(ctx, cutoff); err != nil {
		logger.Error("audit log cleanup failed", "error", err)
	} else if removed > 0 {
		logger.Info("cleaned up audit log", "removed", removed)
	}

	due, err := c.meta.ListDueForDestroy(ctx, c.now())
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		logger.Info("no assets to destroy")
		return nil, nil
	}

	var destroyed []*asset.Version
	for _, version := range due {
		result, err := c.destroyVersion(ctx, schedulerUser, version.Branch, version.AssetPath, version.VersionID, "auto")
		if err != nil {
			logger.Info("auto-destroy failed",
				"asset_path", version.AssetPath, "version_id", version.VersionID, "error", err)
			continue
		}
		destroyed = append(destroyed, result)
	}
	return destroyed, nil
}
