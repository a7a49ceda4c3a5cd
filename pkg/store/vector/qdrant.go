package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/asset"
)

// vectorSize matches the embedding model the retrieval pipeline writes real
// vectors with. Points created here carry a zero placeholder until that
// pipeline overwrites them.
const vectorSize = 1024

// collections maps media classes to their collection. Anything without a
// dedicated collection lands with the documents.
var collections = map[asset.MediaClass]string{
	asset.MediaDocument: "documents",
	asset.MediaAudio:    "audios",
	asset.MediaVideo:    "videos",
	asset.MediaImage:    "images",
	asset.MediaOther:    "documents",
}

// QdrantConfig configures the Qdrant-backed mirror.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantMirror implements Mirror on a Qdrant instance.
type QdrantMirror struct {
	client *qdrant.Client
}

var _ Mirror = (*QdrantMirror)(nil)

// NewQdrantMirror connects to Qdrant over gRPC.
func NewQdrantMirror(cfg QdrantConfig) (*QdrantMirror, error) {
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.Host, port, err)
	}

	return &QdrantMirror{client: client}, nil
}

// EnsureCollections creates the per-class collections that do not exist yet.
func (m *QdrantMirror) EnsureCollections(ctx context.Context) error {
	seen := make(map[string]bool)
	for _, name := range collections {
		if seen[name] {
			continue
		}
		seen[name] = true

		exists, err := m.client.CollectionExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check collection %s: %w", name, err)
		}
		if exists {
			continue
		}

		if err := m.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     vectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		logger.Info("created vector collection", "collection", name)
	}
	return nil
}

// Index upserts a version's point, refreshing the payload when the point
// already exists.
func (m *QdrantMirror) Index(ctx context.Context, v *asset.Version, class asset.MediaClass) error {
	collection := collectionFor(class)
	filter := versionFilter(v.AssetPath, v.VersionID, v.Branch)

	payload := map[string]any{
		"asset_path":       v.AssetPath,
		"version_id":       v.VersionID,
		"branch":           v.Branch,
		"primary_filename": v.PrimaryFilename,
		"status":           string(v.Status),
		"upload_date":      v.UploadDate.UTC().Format(time.RFC3339),
	}

	points, err := m.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(1)),
	})
	if err != nil {
		return fmt.Errorf("scroll %s: %w", collection, err)
	}

	if len(points) > 0 {
		if _, err := m.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: collection,
			Payload:        qdrant.NewValueMap(payload),
			PointsSelector: qdrant.NewPointsSelectorFilter(filter),
		}); err != nil {
			return fmt.Errorf("refresh payload in %s: %w", collection, err)
		}
		return nil
	}

	// Placeholder vector; the embedding pipeline replaces it.
	if _, err := m.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(make([]float32, vectorSize)...),
			Payload: qdrant.NewValueMap(payload),
		}},
	}); err != nil {
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}
	return nil
}

// UpdateStatus rewrites the status field of a version's point.
func (m *QdrantMirror) UpdateStatus(ctx context.Context, assetPath, versionID, branch string, class asset.MediaClass, status asset.Status) error {
	collection := collectionFor(class)

	if _, err := m.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: collection,
		Payload:        qdrant.NewValueMap(map[string]any{"status": string(status)}),
		PointsSelector: qdrant.NewPointsSelectorFilter(versionFilter(assetPath, versionID, branch)),
	}); err != nil {
		if notFound(err) {
			return nil
		}
		return fmt.Errorf("set status in %s: %w", collection, err)
	}
	return nil
}

// Delete removes a version's point.
func (m *QdrantMirror) Delete(ctx context.Context, assetPath, versionID, branch string, class asset.MediaClass) error {
	collection := collectionFor(class)

	if _, err := m.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(versionFilter(assetPath, versionID, branch)),
	}); err != nil {
		if notFound(err) {
			return nil
		}
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

// Close tears down the gRPC connection.
func (m *QdrantMirror) Close() error {
	return m.client.Close()
}

// notFound reports whether the gRPC error means the collection or point is
// already gone. Mirror deletes and status updates are idempotent.
func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func collectionFor(class asset.MediaClass) string {
	if name, ok := collections[class]; ok {
		return name
	}
	return collections[asset.MediaDocument]
}

func versionFilter(assetPath, versionID, branch string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("asset_path", assetPath),
			qdrant.NewMatch("version_id", versionID),
			qdrant.NewMatch("branch", branch),
		},
	}
}
