// Package http exposes C9 (preferences), C10 (segments), and C11
// (campaigns) over HTTP behind C13's admin guard, grounded on
// ledger/internal/transport/http/router.go's switch-based routing idiom.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"shop/services/crm/internal/campaign"
	"shop/services/crm/internal/preference"
	"shop/services/crm/internal/segment"

	sdk "github.com/yaniaici/loyalty-go-sdk"
)

// RoleVerifier resolves a bearer token to the caller's identity and
// role (C13), satisfied by siblings.Clients.
type RoleVerifier interface {
	VerifyRole(ctx context.Context, token string) (*sdk.RoleClaims, error)
}

// Router dispatches crm's HTTP surface.
type Router struct {
	segments    *segment.Service
	campaigns   *campaign.Service
	preferences *preference.Service
	roles       RoleVerifier
}

// NewRouter builds a Router over the three CRM services and the
// sibling used to enforce C13's admin-only precondition.
func NewRouter(segments *segment.Service, campaigns *campaign.Service, preferences *preference.Service, roles RoleVerifier) *Router {
	return &Router{segments: segments, campaigns: campaigns, preferences: preferences, roles: roles}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/segments" && r.Method == http.MethodPost:
		rt.requireAdmin(rt.createSegment)(w, r)
	case path == "/segments" && r.Method == http.MethodGet:
		rt.listSegments(w, r)
	case strings.HasSuffix(path, "/preview-users") && strings.HasPrefix(path, "/segments/"):
		rt.previewSegmentUsers(w, r, idBetween(path, "/segments/", "/preview-users"))

	case path == "/campaigns" && r.Method == http.MethodPost:
		rt.requireAdmin(rt.createCampaign)(w, r)
	case path == "/campaigns" && r.Method == http.MethodGet:
		rt.listCampaigns(w, r)
	case strings.HasSuffix(path, "/preview-users") && strings.HasPrefix(path, "/campaigns/"):
		rt.previewCampaignUsers(w, r, idBetween(path, "/campaigns/", "/preview-users"))
	case strings.HasSuffix(path, "/dispatch") && strings.HasPrefix(path, "/campaigns/"):
		rt.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
			rt.dispatchCampaign(w, r, idBetween(path, "/campaigns/", "/dispatch"))
		})(w, r)
	case strings.HasSuffix(path, "/send-notifications") && strings.HasPrefix(path, "/campaigns/"):
		rt.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
			rt.sendCampaignNotifications(w, r, idBetween(path, "/campaigns/", "/send-notifications"))
		})(w, r)

	case path == "/notifications" && r.Method == http.MethodGet:
		rt.listNotifications(w, r)
	case strings.HasSuffix(path, "/mark-sent") && strings.HasPrefix(path, "/notifications/"):
		rt.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
			rt.markSent(w, r, idBetween(path, "/notifications/", "/mark-sent"))
		})(w, r)

	case strings.HasPrefix(path, "/preferences/infer-all"):
		rt.requireAdmin(rt.inferAll)(w, r)
	case strings.HasPrefix(path, "/preferences/infer-new"):
		rt.requireAdmin(rt.inferNew)(w, r)
	case strings.HasPrefix(path, "/preferences/infer/"):
		rt.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
			rt.inferOne(w, r, strings.TrimPrefix(path, "/preferences/infer/"))
		})(w, r)
	case path == "/preferences/summary":
		rt.requireAdmin(rt.preferenceSummary)(w, r)
	case strings.HasPrefix(path, "/preferences/"):
		rt.getPreferences(w, r, strings.TrimPrefix(path, "/preferences/"))

	case path == "/health":
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

// requireAdmin enforces C13's admin-only precondition via a call to
// the identity sibling's token-verify-with-role endpoint.
func (rt *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearer(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		claims, err := rt.roles.VerifyRole(r.Context(), token)
		if err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if claims.Role != "admin" {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func extractBearer(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errMissingToken
	}
	return strings.TrimPrefix(header, prefix), nil
}

var errMissingToken = &routerError{"missing bearer token"}

type routerError struct{ msg string }

func (e *routerError) Error() string { return e.msg }

func (rt *Router) createSegment(w http.ResponseWriter, r *http.Request) {
	var seg segment.Segment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	if err := rt.segments.Create(r.Context(), &seg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, seg)
}

func (rt *Router) listSegments(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"
	segments, err := rt.segments.List(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, segments)
}

func (rt *Router) previewSegmentUsers(w http.ResponseWriter, r *http.Request, id string) {
	users, err := rt.segments.PreviewUsers(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_ids": users})
}

func (rt *Router) createCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaign.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	c, err := rt.campaigns.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (rt *Router) listCampaigns(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"
	campaigns, err := rt.campaigns.List(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (rt *Router) previewCampaignUsers(w http.ResponseWriter, r *http.Request, id string) {
	users, err := rt.campaigns.PreviewUsers(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_ids": users})
}

func (rt *Router) dispatchCampaign(w http.ResponseWriter, r *http.Request, id string) {
	notifications, err := rt.campaigns.Dispatch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (rt *Router) sendCampaignNotifications(w http.ResponseWriter, r *http.Request, id string) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = "webpush"
	}
	result, err := rt.campaigns.Send(r.Context(), id, channel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) listNotifications(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	notifications, err := rt.campaigns.ListNotifications(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (rt *Router) markSent(w http.ResponseWriter, r *http.Request, id string) {
	if err := rt.campaigns.MarkSent(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) getPreferences(w http.ResponseWriter, r *http.Request, userID string) {
	prefs, err := rt.preferences.GetWithInference(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

func (rt *Router) inferOne(w http.ResponseWriter, r *http.Request, userID string) {
	prefs, err := rt.preferences.Infer(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

func (rt *Router) inferAll(w http.ResponseWriter, r *http.Request) {
	rt.bulkInfer(w, r, nil)
}

func (rt *Router) inferNew(w http.ResponseWriter, r *http.Request) {
	daysBack, _ := strconv.Atoi(r.URL.Query().Get("days_back"))
	if daysBack <= 0 {
		daysBack = 7
	}
	rt.bulkInfer(w, r, &daysBack)
}

// bulkInfer runs preference inference for every purchasing user,
// optionally restricted to those active within daysBack (serving
// infer-all and infer-new respectively).
func (rt *Router) bulkInfer(w http.ResponseWriter, r *http.Request, daysBack *int) {
	lastDays := 36500
	if daysBack != nil {
		lastDays = *daysBack
	}
	one := 1
	users, err := rt.segments.Compile(r.Context(), segment.Filters{LastDays: &lastDays, MinNumPurchases: &one})
	if err != nil {
		writeError(w, err)
		return
	}
	updated := 0
	for _, userID := range users {
		if _, err := rt.preferences.GetWithInference(r.Context(), userID); err == nil {
			updated++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users_processed": len(users), "users_updated": updated})
}

func (rt *Router) preferenceSummary(w http.ResponseWriter, r *http.Request) {
	allDays := 36500
	users, err := rt.segments.Compile(r.Context(), segment.Filters{LastDays: &allDays})
	if err != nil {
		writeError(w, err)
		return
	}
	counts := map[string]int{}
	for _, userID := range users {
		prefs, err := rt.preferences.GetWithInference(r.Context(), userID)
		if err != nil {
			continue
		}
		for _, key := range preference.SegmentVocabulary {
			if _, ok := prefs[key]; ok {
				counts[key]++
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_users": len(users), "preference_coverage": counts})
}

func idBetween(path, prefix, suffix string) string {
	trimmed := strings.TrimPrefix(path, prefix)
	return strings.TrimSuffix(trimmed, "/"+strings.TrimPrefix(suffix, "/"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch err {
	case segment.ErrNotFound, campaign.ErrNotFound:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case campaign.ErrInactive:
		http.Error(w, `{"error":"campaign is not active"}`, http.StatusConflict)
	default:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
