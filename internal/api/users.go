package api

import (
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/makerledger/internal/model"
	"github.com/erazemk/makerledger/internal/policy"
	"github.com/erazemk/makerledger/internal/store"
)

// UsersHandler handles user management endpoints (admin only).
type UsersHandler struct {
	DB *sqlx.DB
}

type createUserRequest struct {
	Username      string   `json:"username"`
	Password      string   `json:"password"`
	Role          string   `json:"role"`
	MakerspaceIDs []string `json:"makerspace_ids"`
}

type updateUserRequest struct {
	Role          string   `json:"role"`
	MakerspaceIDs []string `json:"makerspace_ids"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// checkRole validates a role the caller wants to grant.
func checkRole(w http.ResponseWriter, r *http.Request, role string) bool {
	if !model.ValidRole(role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return false
	}
	if !policy.CanGrantRole(actorFrom(r), role) {
		jsonError(w, http.StatusForbidden, "insufficient permissions to grant "+role)
		return false
	}
	return true
}

// targetUser loads the user named by the path, writing 404 when missing.
func (h *UsersHandler) targetUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, err := store.GetUser(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if user == nil || user.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return user, true
}

// managedUser loads the user named by the path and checks that the caller
// may change it.
func (h *UsersHandler) managedUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := h.targetUser(w, r)
	if !ok {
		return nil, false
	}
	if !policy.CanManageUser(actorFrom(r), *user) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return nil, false
	}
	return user, true
}

// List handles GET /users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" || req.Role == "" {
		jsonError(w, http.StatusBadRequest, "username, password, and role required")
		return
	}
	if !checkRole(w, r, req.Role) {
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := store.GetUserByUsername(r.Context(), h.DB, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing != nil {
		jsonError(w, http.StatusConflict, "username already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Username, string(hash), req.Role, req.MakerspaceIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user created", "user", actorFrom(r).UserName, "new_user", req.Username, "role", req.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Get handles GET /users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.targetUser(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// Update handles PUT /users/{id}. Omitting makerspace_ids keeps the current
// assignments.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, ok := h.managedUser(w, r)
	if !ok {
		return
	}
	if req.Role == "" {
		req.Role = target.Role
	}
	if !checkRole(w, r, req.Role) {
		return
	}

	if err := store.UpdateUser(r.Context(), h.DB, target.ID, req.Role, req.MakerspaceIDs); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, target.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user updated", "user", actorFrom(r).UserName, "target_user", user.Username, "role", user.Role, "makerspaces", user.MakerspaceIDs)
	jsonResponse(w, http.StatusOK, user)
}

// ResetPassword handles PUT /users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Password == "" {
		jsonError(w, http.StatusBadRequest, "password required")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, ok := h.managedUser(w, r)
	if !ok {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, target.ID, string(hash)); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user password reset", "user", actorFrom(r).UserName, "target_user", target.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.UserID == r.PathValue("id") {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	target, ok := h.managedUser(w, r)
	if !ok {
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, target.ID); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user deleted", "user", actor.UserName, "deleted_user", target.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
