// Package webpush delivers VAPID-signed web push notifications,
// grounded on original_source's webpush_adapter.py (status-code
// handling) and implemented over github.com/SherClockHolmes/webpush-go.
package webpush

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gowebpush "github.com/SherClockHolmes/webpush-go"
)

// Config carries the VAPID key pair and claimed contact identity.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

// Adapter sends webpush messages through the configured VAPID keys.
type Adapter struct {
	cfg Config
}

// New builds an Adapter. A zero-value Config leaves Send always failing
// with "VAPID keys not configured", matching the original adapter.
func New(cfg Config) *Adapter {
	if cfg.Subscriber == "" {
		cfg.Subscriber = "mailto:noreply@loyalty.local"
	}
	return &Adapter{cfg: cfg}
}

// Payload is the JSON body delivered to the browser's push service.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon"`
	Badge string         `json:"badge"`
	Data  map[string]any `json:"data"`
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Success               bool
	StatusCode            int
	Error                 string
	ShouldRemoveSubscription bool
	ShouldRetry           bool
}

// subscriptionKeys mirrors the endpoint/keys shape stored in a
// UserSubscription's subscription_data map.
type subscriptionKeys struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Send delivers title/message to the subscription described by data,
// translating gateway status codes into the retry/removal hints C12's
// delivery model needs (spec.md §4.12 step 3).
func (a *Adapter) Send(data map[string]any, title, message string, extra map[string]any) Result {
	if a.cfg.VAPIDPublicKey == "" || a.cfg.VAPIDPrivateKey == "" {
		return Result{Success: false, Error: "VAPID keys not configured"}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("invalid subscription data: %v", err)}
	}
	var sub subscriptionKeys
	if err := json.Unmarshal(raw, &sub); err != nil || sub.Endpoint == "" {
		return Result{Success: false, Error: "invalid subscription data"}
	}

	payload, err := json.Marshal(Payload{
		Title: title,
		Body:  message,
		Icon:  "/icon-192x192.png",
		Badge: "/badge-72x72.png",
		Data:  extra,
	})
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("invalid payload: %v", err)}
	}

	resp, err := gowebpush.SendNotification(payload, &gowebpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: gowebpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &gowebpush.Options{
		Subscriber:      a.cfg.Subscriber,
		VAPIDPublicKey:  a.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: a.cfg.VAPIDPrivateKey,
		TTL:             30,
	})
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("webpush transport error: %v", err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return Result{Success: true, StatusCode: resp.StatusCode}
	case http.StatusGone:
		return Result{Success: false, StatusCode: resp.StatusCode, Error: "subscription expired or invalid", ShouldRemoveSubscription: true}
	case http.StatusTooManyRequests:
		return Result{Success: false, StatusCode: resp.StatusCode, Error: "rate limit exceeded", ShouldRetry: true}
	default:
		return Result{Success: false, StatusCode: resp.StatusCode, Error: fmt.Sprintf("webpush error: status %d", resp.StatusCode)}
	}
}

// SentAt stamps a successful delivery's meta.delivery_info.sent_at.
func SentAt() string {
	return time.Now().UTC().Format(time.RFC3339)
}
