// Package lifecycle implements the coordinator that drives every asset
// operation across the three stores: the metadata store is authoritative,
// the object store holds the blobs, and the vector mirror follows along.
//
// Consistency is eventual and prioritized metadata > object store > vector
// mirror: mirror failures never fail an operation, and a metadata failure
// after a blob commit leaves an orphan for the object store's retention to
// reap.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/asset"
	"github.com/lodehq/lode/pkg/metrics"
	"github.com/lodehq/lode/pkg/store/metadata"
	"github.com/lodehq/lode/pkg/store/object"
	"github.com/lodehq/lode/pkg/store/vector"
)

const (
	defaultArchiveTTLDays = 30
	defaultDestroyTTLDays = 30

	// schedulerUser is the audit identity for TTL-driven transitions.
	schedulerUser = "admin"
)

// Config wires the coordinator's collaborators.
type Config struct {
	Objects object.Store
	Meta    metadata.Store
	Vectors vector.Mirror

	// Location is the timezone lifecycle dates are computed in.
	Location *time.Location

	// UploadConcurrency caps the associated-file fan-out (1-16, default 4).
	UploadConcurrency int

	// PresignExpiry is the lifetime of download URLs. Default: 1h.
	PresignExpiry time.Duration

	// AuditRetentionDays is how long audit rows survive before the destroy
	// job prunes them. Default: 120.
	AuditRetentionDays int

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics

	// Clock is overridable for tests. Default: time.Now.
	Clock func() time.Time
}

// Coordinator orchestrates upload, retrieval, and lifecycle transitions.
type Coordinator struct {
	objects object.Store
	meta    metadata.Store
	vectors vector.Mirror

	location           *time.Location
	uploadConcurrency  int
	presignExpiry      time.Duration
	auditRetentionDays int
	metrics            *metrics.Metrics
	clock              func() time.Time
}

// New creates a coordinator. Objects and Meta are required; a nil Vectors
// falls back to the no-op mirror.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Objects == nil {
		return nil, asset.E(asset.KindInternal, "object store is required")
	}
	if cfg.Meta == nil {
		return nil, asset.E(asset.KindInternal, "metadata store is required")
	}

	vectors := cfg.Vectors
	if vectors == nil {
		vectors = vector.Noop{}
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	concurrency := cfg.UploadConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	if concurrency > 16 {
		concurrency = 16
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	retention := cfg.AuditRetentionDays
	if retention <= 0 {
		retention = 120
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Coordinator{
		objects:            cfg.Objects,
		meta:               cfg.Meta,
		vectors:            vectors,
		location:           location,
		uploadConcurrency:  concurrency,
		presignExpiry:      expiry,
		auditRetentionDays: retention,
		metrics:            cfg.Metrics,
		clock:              clock,
	}, nil
}

func (c *Coordinator) now() time.Time {
	return c.clock().In(c.location)
}

// checkPermission loads the user and verifies branch membership and the
// required permission. Admin passes all permissions but never crosses
// branches.
func (c *Coordinator) checkPermission(ctx context.Context, username, branch string, required asset.Permission) (*asset.User, error) {
	user, err := c.meta.GetUser(ctx, username)
	if err != nil {
		if asset.IsKind(err, asset.KindNotFound) {
			return nil, asset.E(asset.KindForbidden, "user %s not found", username)
		}
		return nil, err
	}

	if branch != user.Branch {
		return nil, asset.E(asset.KindForbidden, "user %s does not have access to branch %s", username, branch)
	}

	if !user.HasPermission(required) {
		return nil, asset.E(asset.KindForbidden, "user %s lacks %s permission", username, required)
	}
	return user, nil
}

// audit records one access-log row. Audit failures are logged, never
// surfaced.
func (c *Coordinator) audit(ctx context.Context, username, assetPath, versionID, branch, operation string, success bool, details string) {
	event := &asset.AuditEvent{
		Username:  username,
		AssetPath: assetPath,
		VersionID: versionID,
		Branch:    branch,
		Operation: operation,
		Timestamp: c.now(),
		Success:   success,
		Details:   details,
	}
	if err := c.meta.RecordAudit(ctx, event); err != nil {
		logger.Warn("failed to record audit event",
			"username", username, "operation", operation, "error", err)
	}
}

// mediaClassOf recovers the media class from an asset path's first segment.
func mediaClassOf(assetPath string) asset.MediaClass {
	segment, _, _ := strings.Cut(assetPath, "/")
	switch class := asset.MediaClass(segment); class {
	case asset.MediaVideo, asset.MediaAudio, asset.MediaImage, asset.MediaDocument, asset.MediaOther:
		return class
	default:
		return asset.MediaOther
	}
}
