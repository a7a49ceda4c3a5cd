package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/asset"
	"github.com/lodehq/lode/pkg/pathutil"
)

// FileResult is one fetched file in a retrieval response.
type FileResult struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	VersionID   string `json:"version_id"`
	URL         string `json:"url"`
	Content     []byte `json:"content,omitempty"`
}

// RetrieveResult bundles the version metadata with the primary file and
// whichever associated files could be fetched.
type RetrieveResult struct {
	Metadata    *asset.Version
	PrimaryFile *FileResult
	Associated  []*FileResult
}

// Retrieve loads a version and fetches its files. The primary file must be
// readable; associated files that fail to fetch are logged and omitted.
func (c *Coordinator) Retrieve(ctx context.Context, username, branch, assetPath, versionID string, wantContent bool) (*RetrieveResult, error) {
	start := c.clock()
	if _, err := c.checkPermission(ctx, username, branch, asset.PermDownload); err != nil {
		return nil, err
	}

	assetPath, err := pathutil.SanitizePath(assetPath)
	if err != nil {
		return nil, err
	}

	version, err := c.meta.GetVersion(ctx, assetPath, versionID, branch)
	if err != nil {
		if asset.IsKind(err, asset.KindNotFound) {
			c.audit(ctx, username, assetPath, versionID, branch, "retrieve", false, "Asset not found")
		}
		return nil, err
	}

	primary, err := c.fetchFile(ctx, branch, assetPath, version.PrimaryFilename, version.VersionID, wantContent)
	if err != nil {
		c.audit(ctx, username, assetPath, versionID, branch, "retrieve", false, "Primary file not found")
		return nil, asset.Wrap(asset.KindNotFound, err, "primary file %s not found", version.PrimaryFilename)
	}

	associated := make([]*FileResult, len(version.AssociatedFilenames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.uploadConcurrency)
	for i, pair := range version.AssociatedFilenames {
		if pair.Filename == "" {
			continue
		}
		g.Go(func() error {
			file, err := c.fetchFile(gctx, branch, assetPath, pair.Filename, pair.VersionID, wantContent)
			if err != nil {
				logger.Error("failed to retrieve file",
					"path", assetPath+"/"+pair.Filename, "error", err)
				return nil
			}
			associated[i] = file
			return nil
		})
	}
	_ = g.Wait()

	result := &RetrieveResult{
		Metadata:    version,
		PrimaryFile: primary,
	}
	for _, file := range associated {
		if file != nil {
			result.Associated = append(result.Associated, file)
		}
	}

	c.audit(ctx, username, assetPath, versionID, branch, "retrieve", true, "")
	c.metrics.RecordOperationDuration("retrieve", time.Since(start).Seconds())
	logger.Info("retrieved asset",
		"asset_path", assetPath, "version_id", versionID, "username", username)
	return result, nil
}

func (c *Coordinator) fetchFile(ctx context.Context, branch, assetPath, filename, versionID string, wantContent bool) (*FileResult, error) {
	key := assetPath + "/" + filename

	obj, err := c.objects.Read(ctx, branch, key, versionID)
	if err != nil {
		return nil, err
	}
	url, err := c.objects.PresignURL(ctx, branch, key, versionID, c.presignExpiry)
	if err != nil {
		return nil, err
	}

	file := &FileResult{
		Filename:    filename,
		ContentType: obj.ContentType,
		VersionID:   obj.VersionID,
		URL:         url,
	}
	if wantContent {
		file.Content = obj.Content
	}
	return file, nil
}

// VersionInfo is one entry in a version listing.
type VersionInfo struct {
	Key          string    `json:"key"`
	VersionID    string    `json:"version_id"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url"`
}

// ListVersions returns the active versions recorded under an asset key with
// a presigned URL per version. Versions whose URL cannot be generated are
// logged and skipped.
func (c *Coordinator) ListVersions(ctx context.Context, username, branch, key string) ([]VersionInfo, error) {
	if _, err := c.checkPermission(ctx, username, branch, asset.PermList); err != nil {
		return nil, err
	}

	key, err := pathutil.SanitizePath(key)
	if err != nil {
		return nil, err
	}
	basePath := key
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		basePath = key[:idx]
	}
	logger.Info("listing versions", "key", key, "username", username)

	versions, err := c.meta.ListVersionsByKey(ctx, key, branch)
	if err != nil {
		return nil, err
	}

	results := make([]*VersionInfo, len(versions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.uploadConcurrency)
	for i, version := range versions {
		g.Go(func() error {
			url, err := c.objects.PresignURL(gctx, branch, key, version.VersionID, c.presignExpiry)
			if err != nil {
				c.audit(gctx, username, version.AssetPath, version.VersionID, branch,
					"list_version", false, err.Error())
				logger.Warn("access denied for version",
					"key", key, "version_id", version.VersionID, "error", err)
				return nil
			}
			results[i] = &VersionInfo{
				Key:          key,
				VersionID:    version.VersionID,
				LastModified: version.UploadDate,
				URL:          url,
			}
			return nil
		})
	}
	_ = g.Wait()

	infos := make([]VersionInfo, 0, len(results))
	for _, info := range results {
		if info != nil {
			infos = append(infos, *info)
		}
	}

	c.audit(ctx, username, basePath, "", branch, "list", true,
		fmt.Sprintf("Found %d versions", len(infos)))
	logger.Info("listed versions", "key", key, "count", len(infos), "username", username)
	return infos, nil
}
