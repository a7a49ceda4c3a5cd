package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lodehq/lode/pkg/asset"
	"github.com/lodehq/lode/pkg/lifecycle"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteJSONOK writes a 200 OK JSON response.
func WriteJSONOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// VersionResponse is the asset metadata shape returned to clients. Internal
// fields (branch, checksum) are filtered out.
type VersionResponse struct {
	AssetPath           string             `json:"asset_path"`
	VersionID           string             `json:"version_id"`
	PrimaryFilename     string             `json:"primary_filename"`
	AssociatedFilenames asset.PairList     `json:"associated_filenames"`
	UploadDate          time.Time          `json:"upload_date"`
	ArchiveDate         time.Time          `json:"archive_date"`
	DestroyDate         time.Time          `json:"destroy_date"`
	Status              asset.Status       `json:"status"`
	ChangeStatus        asset.ChangeStatus `json:"change_status"`
}

// NewVersionResponse converts a version record to its response shape.
func NewVersionResponse(v *asset.Version) VersionResponse {
	pairs := v.AssociatedFilenames
	if pairs == nil {
		pairs = asset.PairList{}
	}
	return VersionResponse{
		AssetPath:           v.AssetPath,
		VersionID:           v.VersionID,
		PrimaryFilename:     v.PrimaryFilename,
		AssociatedFilenames: pairs,
		UploadDate:          v.UploadDate,
		ArchiveDate:         v.ArchiveDate,
		DestroyDate:         v.DestroyDate,
		Status:              v.Status,
		ChangeStatus:        v.ChangeStatus,
	}
}

// NewRetrieveResponse flattens a retrieval result into the wire shape:
// metadata, primary_file, and one associated_file_N entry per fetched
// sidecar, numbered from 1.
func NewRetrieveResponse(result *lifecycle.RetrieveResult) map[string]any {
	response := map[string]any{
		"metadata":     NewVersionResponse(result.Metadata),
		"primary_file": result.PrimaryFile,
	}
	for i, file := range result.Associated {
		response[fmt.Sprintf("associated_file_%d", i+1)] = file
	}
	return response
}
