// Package object defines the immutable, versioned blob store the lifecycle
// coordinator writes assets into. Branches namespace keys so tenants never
// see each other's objects; every commit of a key yields a new version id
// and historical versions are retained until retention expires them.
package object

import (
	"context"
	"errors"
	"time"
)

// ErrNoChange is returned by Upload when the payload is byte-identical to
// the current head of the key. No new version is committed; the caller is
// expected to fall back to the existing version.
var ErrNoChange = errors.New("object store: no changes")

// UploadResult describes one committed version of an object.
type UploadResult struct {
	// VersionID is the opaque, store-assigned version identifier.
	VersionID string

	// Checksum is the SHA-256 hex digest of the payload.
	Checksum string
}

// Object is a fully read blob version.
type Object struct {
	Content     []byte
	ContentType string
	VersionID   string
	Checksum    string
}

// Store is the versioned object store contract.
//
// Keys are relative paths like "video/report/report.pdf"; the branch is a
// separate argument and implementations keep branches fully isolated.
type Store interface {
	// EnsureRepository provisions the backing repository (bucket,
	// versioning, retention rules). Idempotent.
	EnsureRepository(ctx context.Context) error

	// Upload commits data under key and returns the new version. metadata
	// is stored as per-object user metadata on the committed version. When
	// the payload equals the current head byte for byte, it returns the
	// head's UploadResult together with ErrNoChange.
	Upload(ctx context.Context, branch, key string, data []byte, contentType string, metadata map[string]string) (*UploadResult, error)

	// Read fetches a version of key. An empty versionID reads the head.
	Read(ctx context.Context, branch, key, versionID string) (*Object, error)

	// PresignURL returns a time-limited download URL for a version of key,
	// addressed at the store's public endpoint.
	PresignURL(ctx context.Context, branch, key, versionID string, expiry time.Duration) (string, error)

	// HeadVersion returns the current head version of key, or a not-found
	// error when the key is absent or its head is a delete marker.
	HeadVersion(ctx context.Context, branch, key string) (*UploadResult, error)

	// List returns the keys under prefix, relative to the branch.
	List(ctx context.Context, branch, prefix string) ([]string, error)

	// Delete removes the head of key. Historical versions survive; reading
	// the head afterwards reports not found.
	Delete(ctx context.Context, branch, key string) error

	// DeleteAssociated removes the heads of every key under dir except the
	// primary filename.
	DeleteAssociated(ctx context.Context, branch, dir, primaryFilename string) error
}
