package handlers

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/lodehq/lode/internal/logger"
	"github.com/lodehq/lode/pkg/api/auth"
	"github.com/lodehq/lode/pkg/api/middleware"
	"github.com/lodehq/lode/pkg/asset"
	"github.com/lodehq/lode/pkg/store/metadata"
)

// UserHandler serves account creation, login, and shared-user management.
type UserHandler struct {
	store metadata.UserStore
	jwt   *auth.JWTService
}

// NewUserHandler creates a user handler.
func NewUserHandler(store metadata.UserStore, jwt *auth.JWTService) *UserHandler {
	return &UserHandler{store: store, jwt: jwt}
}

type userRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Permissions []string `json:"permissions"`
}

type statusResponse struct {
	Status   string `json:"status"`
	Username string `json:"username,omitempty"`
}

// Create handles POST /users: registers a tenant admin and assigns them a
// fresh branch named {username}_space.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" {
		BadRequest(w, "Username is required")
		return
	}
	if req.Password == "" {
		BadRequest(w, "Password is required")
		return
	}

	user := &asset.User{
		Username:    req.Username,
		Branch:      req.Username + "_space",
		Permissions: []asset.Permission{asset.PermAdmin},
	}
	if err := h.store.CreateUser(r.Context(), user, req.Password); err != nil {
		WriteError(w, err)
		return
	}

	logger.Info("created admin user", "username", req.Username, "branch", user.Branch)
	WriteJSONOK(w, statusResponse{Status: "success", Username: req.Username})
}

// Token handles POST /token: OAuth2 password-style login returning a bearer
// token scoped to the user's branch and permissions.
func (h *UserHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		BadRequest(w, "invalid form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	user, err := h.store.ValidateCredentials(r.Context(), username, password)
	if err != nil {
		if asset.IsKind(err, asset.KindForbidden) || asset.IsKind(err, asset.KindNotFound) {
			Unauthorized(w, "Incorrect username or password")
			return
		}
		WriteError(w, err)
		return
	}

	token, err := h.jwt.GenerateToken(user)
	if err != nil {
		InternalServerError(w, "failed to generate token")
		return
	}
	WriteJSONOK(w, token)
}

// CreateShared handles POST /shared-users: a tenant admin invites a user
// into their own branch. Shared users can never hold admin.
func (h *UserHandler) CreateShared(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" {
		BadRequest(w, "Username is required")
		return
	}
	if req.Password == "" {
		BadRequest(w, "Password is required")
		return
	}
	if len(req.Permissions) == 0 {
		BadRequest(w, "Permissions are required")
		return
	}
	if slices.Contains(req.Permissions, asset.PermAdmin) {
		BadRequest(w, "Shared users cannot have admin permissions. Available permissions: upload, download, list, archive, destroy")
		return
	}
	for _, p := range req.Permissions {
		if !slices.Contains(asset.SharedPermissions(), p) {
			BadRequest(w, "Unknown permission: "+p)
			return
		}
	}

	user := &asset.User{
		Username:    req.Username,
		Branch:      claims.Branch,
		Permissions: req.Permissions,
	}
	if err := h.store.CreateUser(r.Context(), user, req.Password); err != nil {
		WriteError(w, err)
		return
	}

	logger.Info("created shared user",
		"username", req.Username, "branch", claims.Branch, "permissions", req.Permissions)
	WriteJSONOK(w, statusResponse{Status: "success", Username: req.Username})
}

// DeleteShared handles DELETE /shared-users: removes a shared user from the
// caller's branch.
func (h *UserHandler) DeleteShared(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" {
		BadRequest(w, "Username is required")
		return
	}

	user := h.sharedUserInBranch(w, r, req.Username, claims)
	if user == nil {
		return
	}

	if err := h.store.DeleteUser(r.Context(), user.Username); err != nil {
		WriteError(w, err)
		return
	}

	logger.Info("deleted shared user", "username", user.Username, "branch", claims.Branch)
	WriteJSONOK(w, statusResponse{Status: "success"})
}

// UpdateShared handles PUT /shared-users: replaces a shared user's
// permissions.
func (h *UserHandler) UpdateShared(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" {
		BadRequest(w, "Username is required")
		return
	}
	if len(req.Permissions) == 0 {
		BadRequest(w, "Permissions are required")
		return
	}
	if slices.Contains(req.Permissions, asset.PermAdmin) {
		BadRequest(w, "Shared users cannot have admin permissions. Available permissions: upload, download, list, archive, destroy")
		return
	}

	user := h.sharedUserInBranch(w, r, req.Username, claims)
	if user == nil {
		return
	}

	if err := h.store.UpdateUserPermissions(r.Context(), user.Username, req.Permissions); err != nil {
		WriteError(w, err)
		return
	}

	logger.Info("updated shared user permissions",
		"username", user.Username, "permissions", req.Permissions)
	WriteJSONOK(w, statusResponse{Status: "success"})
}

// sharedUserInBranch loads a user and verifies they are a shared user of the
// caller's branch. On failure the problem response is written and nil is
// returned.
func (h *UserHandler) sharedUserInBranch(w http.ResponseWriter, r *http.Request, username string, claims *auth.Claims) *asset.User {
	user, err := h.store.GetUser(r.Context(), username)
	if err != nil {
		if asset.IsKind(err, asset.KindNotFound) {
			NotFound(w, "User not found")
			return nil
		}
		WriteError(w, err)
		return nil
	}
	if user.IsAdmin() {
		BadRequest(w, "User is not a shared user. Only shared users can be managed by this endpoint.")
		return nil
	}
	if user.Branch != claims.Branch {
		Forbidden(w, "User is not a shared user of your branch.")
		return nil
	}
	return user
}
