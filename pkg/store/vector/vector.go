// Package vector mirrors asset versions into a vector index so downstream
// retrieval pipelines can filter by lifecycle status without consulting the
// metadata store. The mirror is advisory: it follows the metadata store and
// every write to it is allowed to fail without failing the operation.
package vector

import (
	"context"

	"github.com/lodehq/lode/pkg/asset"
)

// Mirror is the vector-index mirror contract.
type Mirror interface {
	// EnsureCollections provisions one collection per media class.
	// Idempotent.
	EnsureCollections(ctx context.Context) error

	// Index records a version in the collection for its media class. A
	// point for (asset_path, version_id, branch) that already exists gets
	// its payload refreshed instead of a second point.
	Index(ctx context.Context, v *asset.Version, class asset.MediaClass) error

	// UpdateStatus rewrites the status payload field of a version's point.
	UpdateStatus(ctx context.Context, assetPath, versionID, branch string, class asset.MediaClass, status asset.Status) error

	// Delete removes a version's point.
	Delete(ctx context.Context, assetPath, versionID, branch string, class asset.MediaClass) error
}

// Noop is the mirror used when no vector index is configured.
type Noop struct{}

var _ Mirror = Noop{}

func (Noop) EnsureCollections(context.Context) error { return nil }

func (Noop) Index(context.Context, *asset.Version, asset.MediaClass) error { return nil }

func (Noop) UpdateStatus(context.Context, string, string, string, asset.MediaClass, asset.Status) error {
	return nil
}

func (Noop) Delete(context.Context, string, string, string, asset.MediaClass) error { return nil }
