package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lodehq/lode/pkg/api/middleware"
	"github.com/lodehq/lode/pkg/lifecycle"
)

// maxUploadMemory bounds the multipart form parts held in memory; larger
// parts spill to temporary files.
const maxUploadMemory = 32 << 20

// AssetHandler serves the asset lifecycle endpoints.
type AssetHandler struct {
	coordinator *lifecycle.Coordinator
}

// NewAssetHandler creates an asset handler.
func NewAssetHandler(coordinator *lifecycle.Coordinator) *AssetHandler {
	return &AssetHandler{coordinator: coordinator}
}

// Upload handles POST /fileupload: multipart form with one primary_file,
// optional associated_files, and the lifecycle TTLs in days.
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		BadRequest(w, "invalid multipart form")
		return
	}

	primaries := r.MultipartForm.File["primary_file"]
	if len(primaries) == 0 {
		BadRequest(w, "primary_file is required")
		return
	}
	primary, err := readFormFile(primaries[0])
	if err != nil {
		BadRequest(w, "failed to read primary_file")
		return
	}

	var associated []lifecycle.FileUpload
	for _, header := range r.MultipartForm.File["associated_files"] {
		file, err := readFormFile(header)
		if err != nil {
			BadRequest(w, "failed to read associated file "+header.Filename)
			return
		}
		associated = append(associated, file)
	}

	archiveTTL, ok := formInt(w, r, "archive_ttl")
	if !ok {
		return
	}
	destroyTTL, ok := formInt(w, r, "destroy_ttl")
	if !ok {
		return
	}

	version, err := h.coordinator.Upload(r.Context(), claims.Username, claims.Branch, lifecycle.UploadRequest{
		Primary:        primary,
		Associated:     associated,
		ArchiveTTLDays: archiveTTL,
		DestroyTTLDays: destroyTTL,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, NewVersionResponse(version))
}

// AddAssociated handles POST /add-associated-files/{asset_path}: multipart
// form with associated_files and an optional primary_version_id selecting
// the target version.
func (h *AssetHandler) AddAssociated(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	assetPath := chi.URLParam(r, "*")

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		BadRequest(w, "invalid multipart form")
		return
	}

	var files []lifecycle.FileUpload
	for _, header := range r.MultipartForm.File["associated_files"] {
		file, err := readFormFile(header)
		if err != nil {
			BadRequest(w, "failed to read associated file "+header.Filename)
			return
		}
		files = append(files, file)
	}

	version, err := h.coordinator.AddAssociatedFiles(r.Context(), claims.Username, claims.Branch,
		assetPath, files, r.PostFormValue("primary_version_id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, NewVersionResponse(version))
}

// Download handles GET /filedownload/{asset_path}/{version_id}. The
// return_file_content query flag inlines file bytes in the response.
func (h *AssetHandler) Download(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())

	assetPath, versionID, ok := splitPathVersion(w, r)
	if !ok {
		return
	}
	wantContent := strings.EqualFold(r.URL.Query().Get("return_file_content"), "true")

	result, err := h.coordinator.Retrieve(r.Context(), claims.Username, claims.Branch,
		assetPath, versionID, wantContent)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, NewRetrieveResponse(result))
}

// Archive handles POST /filearchive/{asset_path}/{version_id}.
func (h *AssetHandler) Archive(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())

	assetPath, versionID, ok := splitPathVersion(w, r)
	if !ok {
		return
	}

	version, err := h.coordinator.Archive(r.Context(), claims.Username, claims.Branch, assetPath, versionID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, NewVersionResponse(version))
}

// Destroy handles POST /delfile/{asset_path}/{version_id}.
func (h *AssetHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())

	assetPath, versionID, ok := splitPathVersion(w, r)
	if !ok {
		return
	}

	version, err := h.coordinator.Destroy(r.Context(), claims.Username, claims.Branch, assetPath, versionID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, NewVersionResponse(version))
}

// ListVersions handles GET /fileversions/{asset_path}/{filename}: the whole
// wildcard is the asset key.
func (h *AssetHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())

	key := chi.URLParam(r, "*")
	if key == "" {
		BadRequest(w, "asset key is required")
		return
	}

	versions, err := h.coordinator.ListVersions(r.Context(), claims.Username, claims.Branch, key)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, versions)
}

// splitPathVersion splits a {asset_path}/{version_id} wildcard. The version
// id is the final segment.
func splitPathVersion(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	wild := chi.URLParam(r, "*")
	idx := strings.LastIndex(wild, "/")
	if idx <= 0 || idx == len(wild)-1 {
		BadRequest(w, "expected {asset_path}/{version_id}")
		return "", "", false
	}
	return wild[:idx], wild[idx+1:], true
}

func readFormFile(header *multipart.FileHeader) (lifecycle.FileUpload, error) {
	file, err := header.Open()
	if err != nil {
		return lifecycle.FileUpload{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return lifecycle.FileUpload{}, err
	}
	return lifecycle.FileUpload{Filename: header.Filename, Content: data}, nil
}

// formInt parses an optional integer form field. Zero means "use the
// default". On a malformed value the problem response is written.
func formInt(w http.ResponseWriter, r *http.Request, field string) (int, bool) {
	raw := r.PostFormValue(field)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		BadRequest(w, field+" must be a non-negative integer")
		return 0, false
	}
	return value, true
}
