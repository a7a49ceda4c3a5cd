package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodehq/lode/pkg/api/auth"
	"github.com/lodehq/lode/pkg/asset"
	"github.com/lodehq/lode/pkg/lifecycle"
	"github.com/lodehq/lode/pkg/store/metadata"
	"github.com/lodehq/lode/pkg/store/object"
)

// memObjectStore is a minimal in-memory versioned object store.
type memObjectStore struct {
	mu      sync.Mutex
	nextVer int
	objects map[string][]memVersion // "{branch}/{key}"
	deleted map[string]bool
}

type memVersion struct {
	versionID   string
	checksum    string
	contentType string
	content     []byte
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: map[string][]memVersion{}, deleted: map[string]bool{}}
}

func (m *memObjectStore) EnsureRepository(context.Context) error { return nil }

func (m *memObjectStore) Upload(_ context.Context, branch, key string, data []byte, contentType string, _ map[string]string) (*object.UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	full := branch + "/" + key

	if versions := m.objects[full]; len(versions) > 0 && !m.deleted[full] {
		head := versions[len(versions)-1]
		if head.checksum == checksum {
			return &object.UploadResult{VersionID: head.versionID, Checksum: checksum}, object.ErrNoChange
		}
	}

	m.nextVer++
	version := memVersion{
		versionID:   fmt.Sprintf("v%d", m.nextVer),
		checksum:    checksum,
		contentType: contentType,
		content:     append([]byte(nil), data...),
	}
	m.objects[full] = append(m.objects[full], version)
	m.deleted[full] = false
	return &object.UploadResult{VersionID: version.versionID, Checksum: checksum}, nil
}

func (m *memObjectStore) Read(_ context.Context, branch, key, versionID string) (*object.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	full := branch + "/" + key
	versions := m.objects[full]
	if versionID == "" {
		if len(versions) == 0 || m.deleted[full] {
			return nil, asset.E(asset.KindNotFound, "object %s not found", key)
		}
		head := versions[len(versions)-1]
		return &object.Object{Content: head.content, ContentType: head.contentType, VersionID: head.versionID, Checksum: head.checksum}, nil
	}
	for _, v := range versions {
		if v.versionID == versionID {
			return &object.Object{Content: v.content, ContentType: v.contentType, VersionID: v.versionID, Checksum: v.checksum}, nil
		}
	}
	return nil, asset.E(asset.KindNotFound, "object %s@%s not found", key, versionID)
}

func (m *memObjectStore) PresignURL(_ context.Context, branch, key, versionID string, _ time.Duration) (string, error) {
	return "https://assets.test/" + branch + "/" + key + "?versionId=" + versionID, nil
}

func (m *memObjectStore) HeadVersion(_ context.Context, branch, key string) (*object.UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	full := branch + "/" + key
	versions := m.objects[full]
	if len(versions) == 0 || m.deleted[full] {
		return nil, asset.E(asset.KindNotFound, "object %s not found", key)
	}
	head := versions[len(versions)-1]
	return &object.UploadResult{VersionID: head.versionID, Checksum: head.checksum}, nil
}

func (m *memObjectStore) List(_ context.Context, branch, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	fullPrefix := branch + "/" + strings.TrimSuffix(prefix, "/") + "/"
	for full := range m.objects {
		if strings.HasPrefix(full, fullPrefix) && !m.deleted[full] {
			keys = append(keys, strings.TrimPrefix(full, branch+"/"))
		}
	}
	return keys, nil
}

func (m *memObjectStore) Delete(_ context.Context, branch, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted[branch+"/"+key] = true
	return nil
}

func (m *memObjectStore) DeleteAssociated(ctx context.Context, branch, dir, primaryFilename string) error {
	keys, err := m.List(ctx, branch, dir)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if path.Base(key) == primaryFilename {
			continue
		}
		if err := m.Delete(ctx, branch, key); err != nil {
			return err
		}
	}
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	meta, err := metadata.New(&metadata.Config{
		Type:   metadata.DatabaseTypeSQLite,
		SQLite: metadata.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)

	coordinator, err := lifecycle.New(lifecycle.Config{
		Objects: newMemObjectStore(),
		Meta:    meta,
	})
	require.NoError(t, err)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret: "test-secret-key-that-is-at-least-32-characters-long",
	})
	require.NoError(t, err)

	return NewRouter(coordinator, jwtService, meta)
}

func doJSON(t *testing.T, router http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func createUserAndLogin(t *testing.T, router http.Handler, username, password string) string {
	t.Helper()

	rr := doJSON(t, router, http.MethodPost, "/users", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	return login(t, router, username, password)
}

func login(t *testing.T, router http.Handler, username, password string) string {
	t.Helper()

	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	token := decodeBody[map[string]any](t, rr)
	return token["access_token"].(string)
}

func multipartUpload(t *testing.T, router http.Handler, target, token string, fields map[string]string, files map[string][]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for field, value := range fields {
		require.NoError(t, writer.WriteField(field, value))
	}
	for field, entries := range files {
		for _, entry := range entries {
			name, content, _ := strings.Cut(entry, "=")
			part, err := writer.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = part.Write([]byte(content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/fileupload", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/filedownload/document/x/v1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUserCreationAndLogin(t *testing.T) {
	router := newTestRouter(t)

	token := createUserAndLogin(t, router, "alice", "s3cret")
	assert.NotEmpty(t, token)

	t.Run("duplicate username conflicts", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/users", "", map[string]string{
			"username": "alice", "password": "other",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("wrong password unauthorized", func(t *testing.T) {
		form := url.Values{"username": {"alice"}, "password": {"wrong"}}
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/users", "", map[string]string{"username": "bob"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSharedUsers(t *testing.T) {
	router := newTestRouter(t)
	adminToken := createUserAndLogin(t, router, "alice", "s3cret")

	rr := doJSON(t, router, http.MethodPost, "/shared-users", adminToken, map[string]any{
		"username":    "bob",
		"password":    "pw",
		"permissions": []string{"download", "list"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	bobToken := login(t, router, "bob", "pw")

	t.Run("shared user cannot manage shared users", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/shared-users", bobToken, map[string]any{
			"username": "carol", "password": "pw", "permissions": []string{"list"},
		})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("admin permission rejected for shared users", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/shared-users", adminToken, map[string]any{
			"username": "carol", "password": "pw", "permissions": []string{"admin"},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("update permissions", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPut, "/shared-users", adminToken, map[string]any{
			"username": "bob", "permissions": []string{"upload", "download"},
		})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("delete shared user", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodDelete, "/shared-users", adminToken, map[string]any{
			"username": "bob",
		})
		assert.Equal(t, http.StatusOK, rr.Code)

		form := url.Values{"username": {"bob"}, "password": {"pw"}}
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		loginRR := httptest.NewRecorder()
		router.ServeHTTP(loginRR, req)
		assert.Equal(t, http.StatusUnauthorized, loginRR.Code)
	})
}

func TestAssetLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := createUserAndLogin(t, router, "alice", "s3cret")

	rr := multipartUpload(t, router, "/fileupload", token,
		map[string]string{"archive_ttl": "1", "destroy_ttl": "1"},
		map[string][]string{
			"primary_file":     {"greeting.txt=Hello"},
			"associated_files": {"fr.txt=Bonjour"},
		})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	uploaded := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "document/greeting", uploaded["asset_path"])
	assert.Equal(t, "active", uploaded["status"])
	versionID := uploaded["version_id"].(string)
	require.NotEmpty(t, versionID)

	t.Run("download with content", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet,
			"/filedownload/document/greeting/"+versionID+"?return_file_content=true", token, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		body := decodeBody[map[string]any](t, rr)
		primary := body["primary_file"].(map[string]any)
		assert.Equal(t, "greeting.txt", primary["filename"])
		assert.NotEmpty(t, primary["content"])
		assert.Contains(t, body, "associated_file_1")
	})

	t.Run("add associated files", func(t *testing.T) {
		rr := multipartUpload(t, router, "/add-associated-files/document/greeting", token,
			nil,
			map[string][]string{"associated_files": {"es.txt=Hola"}})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		body := decodeBody[map[string]any](t, rr)
		pairs := body["associated_filenames"].([]any)
		assert.Len(t, pairs, 2)
	})

	t.Run("list versions", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet, "/fileversions/document/greeting/greeting.txt", token, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		versions := decodeBody[[]map[string]any](t, rr)
		require.Len(t, versions, 1)
		assert.Equal(t, versionID, versions[0]["version_id"])
	})

	t.Run("destroy before archive fails precondition", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/delfile/document/greeting/"+versionID, token, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("archive then destroy", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/filearchive/document/greeting/"+versionID, token, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		archived := decodeBody[map[string]any](t, rr)
		assert.Equal(t, "archived", archived["status"])

		rr = doJSON(t, router, http.MethodPost, "/delfile/document/greeting/"+versionID, token, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		destroyed := decodeBody[map[string]any](t, rr)
		assert.Equal(t, "destroyed", destroyed["status"])

		rr = doJSON(t, router, http.MethodGet,
			"/filedownload/document/greeting/"+versionID, token, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("download unknown asset 404", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet, "/filedownload/document/nope/v999", token, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("missing primary file 400", func(t *testing.T) {
		rr := multipartUpload(t, router, "/fileupload", token, nil,
			map[string][]string{"associated_files": {"fr.txt=Bonjour"}})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
