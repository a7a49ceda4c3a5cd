// Package metadata implements the authoritative relational store: version
// history, users, and the audit log. It is the only store the coordinator
// trusts for lifecycle status; the object store and the vector mirror follow
// it.
package metadata

import (
	"context"
	"time"

	"github.com/lodehq/lode/pkg/asset"
)

// Store is the full metadata contract the coordinator and the HTTP layer
// depend on.
type Store interface {
	VersionStore
	UserStore
	AuditStore
}

// VersionStore manages commit_history rows keyed by
// (asset_path, version_id, branch).
type VersionStore interface {
	// SaveVersion upserts one version row. Re-saving the same key replaces
	// the row, which is how NoChange uploads merge associated files into an
	// existing version.
	SaveVersion(ctx context.Context, v *asset.Version) error

	// GetVersion fetches one exact version.
	GetVersion(ctx context.Context, assetPath, versionID, branch string) (*asset.Version, error)

	// GetHeadVersion returns the most recently uploaded version of
	// assetPath regardless of status.
	GetHeadVersion(ctx context.Context, assetPath, branch string) (*asset.Version, error)

	// GetLatestActive returns the most recently uploaded active version of
	// assetPath.
	GetLatestActive(ctx context.Context, assetPath, branch string) (*asset.Version, error)

	// ListVersionsByKey returns the active versions recorded under an asset
	// key (asset_path + "/" + primary filename), newest first.
	ListVersionsByKey(ctx context.Context, assetKey, branch string) ([]*asset.Version, error)

	// UpdateStatus advances one version's lifecycle status. The archive and
	// destroy dates are planned at upload time and are not touched here.
	UpdateStatus(ctx context.Context, assetPath, versionID, branch string, status asset.Status) error

	// DeleteMetadata removes a version row together with its audit events.
	DeleteMetadata(ctx context.Context, assetPath, versionID, branch string) error

	// ListDueForArchive returns active versions whose planned archive date
	// has passed, across all branches.
	ListDueForArchive(ctx context.Context, before time.Time) ([]*asset.Version, error)

	// ListDueForDestroy returns archived versions whose planned destroy
	// date has passed, across all branches.
	ListDueForDestroy(ctx context.Context, before time.Time) ([]*asset.Version, error)

	// PrimaryChanged reports whether a payload with the given checksum is
	// new content within the branch, naming the existing asset when it is
	// not.
	PrimaryChanged(ctx context.Context, checksum, assetPath, branch string) (asset.ChangeStatus, error)
}

// UserStore manages tenant admins and shared users.
type UserStore interface {
	// CreateUser stores a user with a freshly hashed password. Duplicate
	// usernames fail with a conflict error.
	CreateUser(ctx context.Context, user *asset.User, password string) error

	// GetUser fetches one user by username.
	GetUser(ctx context.Context, username string) (*asset.User, error)

	// ValidateCredentials checks a username/password pair and returns the
	// user on success.
	ValidateCredentials(ctx context.Context, username, password string) (*asset.User, error)

	// UpdateUserPermissions replaces a user's permission set.
	UpdateUserPermissions(ctx context.Context, username string, permissions []asset.Permission) error

	// DeleteUser removes one user.
	DeleteUser(ctx context.Context, username string) error

	// ListUsersByBranch returns every user attached to a branch.
	ListUsersByBranch(ctx context.Context, branch string) ([]*asset.User, error)
}

// AuditStore appends and prunes the access log.
type AuditStore interface {
	// RecordAudit appends one event. Failures here must not fail the
	// operation being audited; callers log and continue.
	RecordAudit(ctx context.Context, event *asset.AuditEvent) error

	// ListAudit returns events for a branch, newest first, up to limit.
	ListAudit(ctx context.Context, branch string, limit int) ([]*asset.AuditEvent, error)

	// CleanupLogs deletes events older than the cutoff in batches and
	// returns how many rows went away.
	CleanupLogs(ctx context.Context, cutoff time.Time) (int64, error)
}
