// Package http exposes C1 Identity Store and C13 Admin/Role Guard over
// HTTP, grounded on core/internal/transport/http/router.go's
// switch-based routing idiom.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"identity/internal/auth"
)

// Router dispatches identity's HTTP surface.
type Router struct {
	svc *auth.Service
	jwt *auth.JWTManager
}

// NewRouter builds a Router over svc.
func NewRouter(svc *auth.Service, jwt *auth.JWTManager) *Router {
	return &Router{svc: svc, jwt: jwt}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/auth/register" && r.Method == http.MethodPost:
		rt.register(w, r)
	case path == "/auth/login" && r.Method == http.MethodPost:
		rt.login(w, r)
	case path == "/auth/verify" && r.Method == http.MethodPost:
		rt.verify(w, r)
	case path == "/auth/refresh" && r.Method == http.MethodPost:
		rt.refresh(w, r)
	case strings.HasPrefix(path, "/auth/oauth/") && r.Method == http.MethodPost:
		rt.oauthLogin(w, r, strings.TrimPrefix(path, "/auth/oauth/"))
	case path == "/users/me" && r.Method == http.MethodGet:
		rt.requireAuth(rt.me)(w, r)
	case path == "/admin/users" && r.Method == http.MethodGet:
		rt.requireAuth(rt.requireRole(auth.RoleAdmin, rt.listUsers))(w, r)
	case strings.HasPrefix(path, "/admin/users/") && strings.HasSuffix(path, "/promote-vendor"):
		rt.requireAuth(rt.requireRole(auth.RoleAdmin, rt.promoteVendor))(w, r)
	case strings.HasPrefix(path, "/admin/users/") && strings.HasSuffix(path, "/promote-admin"):
		rt.requireAuth(rt.requireRole(auth.RoleAdmin, rt.promoteAdmin))(w, r)
	case path == "/admin/overview" && r.Method == http.MethodGet:
		rt.requireAuth(rt.requireRole(auth.RoleAdmin, rt.overview))(w, r)

	// Internal, sibling-only endpoints (spec.md §4.13 C13's role guard
	// and §4.9 C9's preference storage; not part of the public §6 surface).
	case path == "/internal/verify-role" && r.Method == http.MethodPost:
		rt.verifyRole(w, r)
	case strings.HasPrefix(path, "/internal/users/") && strings.HasSuffix(path, "/preferences") && r.Method == http.MethodGet:
		rt.getPreferences(w, r, pathID(path, "/internal/users/", "/preferences"))
	case strings.HasPrefix(path, "/internal/users/") && strings.HasSuffix(path, "/preferences") && r.Method == http.MethodPut:
		rt.setPreferences(w, r, pathID(path, "/internal/users/", "/preferences"))
	case strings.HasPrefix(path, "/internal/users/") && r.Method == http.MethodGet:
		rt.getUserInternal(w, r, strings.TrimPrefix(path, "/internal/users/"))

	case path == "/health":
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func (rt *Router) requireAuth(next func(w http.ResponseWriter, r *http.Request, claims *auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		claims, err := rt.jwt.ValidateToken(token)
		if err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r, claims)
	}
}

func (rt *Router) requireRole(role auth.Role, next func(w http.ResponseWriter, r *http.Request, claims *auth.Claims)) func(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	return func(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
		if claims.Role != role {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		next(w, r, claims)
	}
}

func (rt *Router) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	user, tokens, err := rt.svc.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "tokens": tokens})
}

func (rt *Router) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	user, tokens, err := rt.svc.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "tokens": tokens})
}

func (rt *Router) oauthLogin(w http.ResponseWriter, r *http.Request, provider string) {
	var oauthUser auth.OAuthUser
	if err := json.NewDecoder(r.Body).Decode(&oauthUser); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	oauthUser.Provider = auth.Provider(provider)
	user, tokens, err := rt.svc.LoginWithOAuth(r.Context(), oauthUser)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "tokens": tokens})
}

func (rt *Router) verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	userID, err := rt.svc.Verify(r.Context(), req.Token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID})
}

func (rt *Router) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	tokens, err := rt.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		http.Error(w, `{"error":"invalid refresh token"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (rt *Router) me(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	user, err := rt.svc.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (rt *Router) listUsers(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	limit, offset := pagination(r)
	users, total, err := rt.svc.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "total": total})
}

func (rt *Router) promoteVendor(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	id := pathID(r.URL.Path, "/admin/users/", "/promote-vendor")
	user, err := rt.svc.PromoteVendor(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (rt *Router) promoteAdmin(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	id := pathID(r.URL.Path, "/admin/users/", "/promote-admin")
	user, err := rt.svc.PromoteAdmin(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (rt *Router) overview(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	ov, err := rt.svc.Overview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// verifyRole is a single-hop version of /auth/verify for siblings that
// need both the caller's identity and role (C13's admin guard), sparing
// them a second round trip to /users/me.
func (rt *Router) verifyRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	claims, err := rt.jwt.ValidateToken(req.Token)
	if err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": claims.UserID, "role": claims.Role})
}

func (rt *Router) getUserInternal(w http.ResponseWriter, r *http.Request, id string) {
	user, err := rt.svc.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (rt *Router) getPreferences(w http.ResponseWriter, r *http.Request, id string) {
	user, err := rt.svc.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": user.Preferences})
}

func (rt *Router) setPreferences(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Preferences map[string]any `json:"preferences"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	user, err := rt.svc.SetPreferences(r.Context(), id, req.Preferences)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": user.Preferences})
}

func pathID(path, prefix, suffix string) string {
	trimmed := strings.TrimPrefix(path, prefix)
	return strings.TrimSuffix(trimmed, suffix)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch err {
	case auth.ErrUserNotFound:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case auth.ErrUserExists:
		http.Error(w, `{"error":"conflict"}`, http.StatusConflict)
	case auth.ErrInvalidCredentials:
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	case auth.ErrAccountDisabled:
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	default:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
