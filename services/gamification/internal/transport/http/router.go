// Package http exposes C8's gamification HTTP surface: profiles,
// rewards, special rewards, and in-app notifications.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gamification/internal/gamification"
	"gamification/internal/metrics"
)

// Router dispatches the gamification service's HTTP surface.
type Router struct {
	engine    *gamification.Service
	rewards   *gamification.RewardService
	special   *gamification.SpecialRewardService
	notifier  *gamification.NotificationService
}

// NewRouter builds a Router over the four engine services.
func NewRouter(engine *gamification.Service, rewards *gamification.RewardService, special *gamification.SpecialRewardService, notifier *gamification.NotificationService) *Router {
	return &Router{engine: engine, rewards: rewards, special: special, notifier: notifier}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/stats") && r.Method == http.MethodGet:
		rt.stats(w, r, userIDFromPath(path, "/stats"))
	case strings.HasSuffix(path, "/profile") && r.Method == http.MethodGet:
		rt.profile(w, r, userIDFromPath(path, "/profile"))
	case strings.HasSuffix(path, "/badges") && r.Method == http.MethodGet:
		rt.badges(w, r, userIDFromPath(path, "/badges"))
	case strings.HasSuffix(path, "/experience-log") && r.Method == http.MethodGet:
		rt.experienceLog(w, r, userIDFromPath(path, "/experience-log"))
	case strings.HasSuffix(path, "/add-experience") && r.Method == http.MethodPost:
		rt.addExperience(w, r, userIDFromPath(path, "/add-experience"))
	case strings.HasSuffix(path, "/reset") && r.Method == http.MethodPost:
		rt.reset(w, r, userIDFromPath(path, "/reset"))

	case path == "/events/ticket-processed" && r.Method == http.MethodPost:
		rt.ticketProcessed(w, r)

	case path == "/rewards" && r.Method == http.MethodGet:
		rt.listRewards(w, r)
	case strings.Contains(path, "/redeem-reward/") && r.Method == http.MethodPost:
		rt.redeemReward(w, r, path)
	case strings.HasSuffix(path, "/redemptions") && r.Method == http.MethodGet:
		rt.listRedemptions(w, r, userIDFromPath(path, "/redemptions"))
	case strings.HasPrefix(path, "/redemptions/") && strings.HasSuffix(path, "/use") && r.Method == http.MethodPost:
		rt.useRedemption(w, r, codeFromPath(path, "/use"))
	case strings.HasPrefix(path, "/redemptions/") && strings.HasSuffix(path, "/expire") && r.Method == http.MethodPost:
		rt.expireRedemption(w, r, codeFromPath(path, "/expire"))
	case strings.HasPrefix(path, "/redemptions/") && r.Method == http.MethodGet:
		rt.getRedemption(w, r, strings.TrimPrefix(path, "/redemptions/"))

	case path == "/special-rewards" && r.Method == http.MethodPost:
		rt.createSpecialReward(w, r)
	case path == "/special-rewards/distribute" && r.Method == http.MethodPost:
		rt.distributeSpecialReward(w, r)
	case strings.HasSuffix(path, "/special-rewards/available") && r.Method == http.MethodGet:
		rt.availableSpecialRewards(w, r, userIDFromPath(path, "/special-rewards/available"))
	case strings.Contains(path, "/special-rewards/") && strings.HasSuffix(path, "/claim") && r.Method == http.MethodPost:
		rt.claimSpecialReward(w, r, path)

	case strings.HasSuffix(path, "/notifications") && r.Method == http.MethodGet:
		rt.listNotifications(w, r, userIDFromPath(path, "/notifications"))
	case strings.HasSuffix(path, "/notifications/stats") && r.Method == http.MethodGet:
		rt.notificationStats(w, r, userIDFromPath(path, "/notifications/stats"))
	case strings.HasSuffix(path, "/notifications/read-all") && r.Method == http.MethodPost:
		rt.markAllNotificationsRead(w, r, userIDFromPath(path, "/notifications/read-all"))
	case strings.Contains(path, "/notifications/") && strings.HasSuffix(path, "/read") && r.Method == http.MethodPost:
		rt.markNotificationRead(w, r, path)

	case path == "/health":
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func userIDFromPath(path, suffix string) string {
	trimmed := strings.TrimSuffix(path, suffix)
	trimmed = strings.TrimPrefix(trimmed, "/users/")
	return strings.Trim(trimmed, "/")
}

func codeFromPath(path, suffix string) string {
	trimmed := strings.TrimSuffix(path, suffix)
	trimmed = strings.TrimPrefix(trimmed, "/redemptions/")
	return strings.Trim(trimmed, "/")
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request, userID string) {
	stats, err := rt.engine.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) profile(w http.ResponseWriter, r *http.Request, userID string) {
	p, err := rt.engine.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (rt *Router) badges(w http.ResponseWriter, r *http.Request, userID string) {
	badges, err := rt.engine.Badges(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

func (rt *Router) experienceLog(w http.ResponseWriter, r *http.Request, userID string) {
	limit, offset := pagination(r)
	entries, err := rt.engine.ExperienceLog(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (rt *Router) reset(w http.ResponseWriter, r *http.Request, userID string) {
	if err := rt.engine.Reset(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) addExperience(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	p, err := rt.engine.AddExperience(r.Context(), userID, body.Amount, body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (rt *Router) ticketProcessed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID         string    `json:"user_id"`
		TicketID       string    `json:"ticket_id"`
		IsValid        bool      `json:"is_valid"`
		TotalAmount    float64   `json:"total_amount"`
		StoreName      string    `json:"store_name"`
		ProcessingDate time.Time `json:"processing_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	if body.ProcessingDate.IsZero() {
		body.ProcessingDate = time.Now()
	}
	p, err := rt.engine.ProcessTicketEvent(r.Context(), gamification.TicketEvent{
		UserID:         body.UserID,
		TicketID:       body.TicketID,
		IsValid:        body.IsValid,
		TotalAmount:    body.TotalAmount,
		StoreName:      body.StoreName,
		ProcessingDate: body.ProcessingDate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (rt *Router) listRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := rt.rewards.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (rt *Router) redeemReward(w http.ResponseWriter, r *http.Request, path string) {
	idx := strings.Index(path, "/redeem-reward/")
	userID := strings.Trim(strings.TrimPrefix(path[:idx], "/users"), "/")
	rewardID := strings.TrimPrefix(path[idx:], "/redeem-reward/")

	red, err := rt.rewards.Redeem(r.Context(), userID, rewardID)
	if err != nil {
		writeError(w, err)
		return
	}
	rewardType := "unknown"
	if rewards, err := rt.rewards.List(r.Context()); err == nil {
		for _, rw := range rewards {
			if rw.ID == rewardID {
				rewardType = rw.RewardType
			}
		}
	}
	metrics.RecordRewardRedeemed(rewardType)
	writeJSON(w, http.StatusCreated, red)
}

func (rt *Router) listRedemptions(w http.ResponseWriter, r *http.Request, userID string) {
	status := r.URL.Query().Get("status")
	redemptions, err := rt.rewards.ListForUser(r.Context(), userID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redemptions)
}

func (rt *Router) getRedemption(w http.ResponseWriter, r *http.Request, code string) {
	red, used, expired, err := rt.rewards.Validate(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"redemption": red,
		"is_used":    used,
		"is_expired": expired,
	})
}

func (rt *Router) useRedemption(w http.ResponseWriter, r *http.Request, code string) {
	if err := rt.rewards.Use(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) expireRedemption(w http.ResponseWriter, r *http.Request, code string) {
	if err := rt.rewards.Expire(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) createSpecialReward(w http.ResponseWriter, r *http.Request) {
	var sr gamification.SpecialReward
	if err := json.NewDecoder(r.Body).Decode(&sr); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	if err := rt.special.Create(r.Context(), &sr); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sr)
}

func (rt *Router) distributeSpecialReward(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SpecialRewardID   string   `json:"special_reward_id"`
		TargetUsers       []string `json:"target_users"`
		SendNotifications bool     `json:"send_notifications"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	affected, sent, err := rt.special.Distribute(r.Context(), body.SpecialRewardID, body.TargetUsers, body.SendNotifications)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"users_affected": affected, "notifications_sent": sent})
}

func (rt *Router) availableSpecialRewards(w http.ResponseWriter, r *http.Request, userID string) {
	var segments []string
	if raw := r.URL.Query().Get("segments"); raw != "" {
		segments = strings.Split(raw, ",")
	}
	rewards, err := rt.special.Available(r.Context(), userID, segments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (rt *Router) claimSpecialReward(w http.ResponseWriter, r *http.Request, path string) {
	idx := strings.Index(path, "/special-rewards/")
	userID := strings.Trim(strings.TrimPrefix(path[:idx], "/users"), "/")
	rest := strings.TrimSuffix(strings.TrimPrefix(path[idx:], "/special-rewards/"), "/claim")

	red, err := rt.special.Claim(r.Context(), userID, rest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, red)
}

func (rt *Router) listNotifications(w http.ResponseWriter, r *http.Request, userID string) {
	unreadOnly := r.URL.Query().Get("unread_only") == "true"
	limit, offset := pagination(r)
	notifications, err := rt.notifier.List(r.Context(), userID, unreadOnly, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (rt *Router) notificationStats(w http.ResponseWriter, r *http.Request, userID string) {
	stats, err := rt.notifier.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) markAllNotificationsRead(w http.ResponseWriter, r *http.Request, userID string) {
	count, err := rt.notifier.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": count})
}

func (rt *Router) markNotificationRead(w http.ResponseWriter, r *http.Request, path string) {
	idx := strings.Index(path, "/notifications/")
	userID := strings.Trim(strings.TrimPrefix(path[:idx], "/users"), "/")
	id := strings.TrimSuffix(strings.TrimPrefix(path[idx:], "/notifications/"), "/read")

	n, err := rt.notifier.MarkRead(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
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

func writeError(w http.ResponseWriter, err error) {
	switch err {
	case gamification.ErrNotFound:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case gamification.ErrRewardInactive, gamification.ErrSpecialRewardInactive:
		http.Error(w, `{"error":"reward is not active"}`, http.StatusBadRequest)
	case gamification.ErrRewardDepleted, gamification.ErrMaxRedemptions:
		http.Error(w, `{"error":"reward has no remaining redemptions"}`, http.StatusConflict)
	case gamification.ErrInsufficientXP:
		http.Error(w, `{"error":"insufficient experience"}`, http.StatusBadRequest)
	case gamification.ErrRedemptionUsed:
		http.Error(w, `{"error":"redemption already used"}`, http.StatusConflict)
	case gamification.ErrRedemptionExpired:
		http.Error(w, `{"error":"redemption expired"}`, http.StatusGone)
	case gamification.ErrAccessDenied:
		http.Error(w, `{"error":"access denied"}`, http.StatusForbidden)
	default:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
