package webpush

import "testing"

func TestSendWithoutVAPIDKeysFails(t *testing.T) {
	a := New(Config{})
	res := a.Send(map[string]any{"endpoint": "https://push.example/x"}, "Title", "Body", nil)
	if res.Success {
		t.Fatal("expected failure without configured VAPID keys")
	}
	if res.Error != "VAPID keys not configured" {
		t.Errorf("unexpected error message: %q", res.Error)
	}
}

func TestSendWithInvalidSubscriptionDataFails(t *testing.T) {
	a := New(Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"})
	res := a.Send(map[string]any{"not_an_endpoint": true}, "Title", "Body", nil)
	if res.Success {
		t.Fatal("expected failure on subscription data missing an endpoint")
	}
}

func TestNewDefaultsSubscriber(t *testing.T) {
	a := New(Config{})
	if a.cfg.Subscriber != "mailto:noreply@loyalty.local" {
		t.Errorf("expected default subscriber set, got %q", a.cfg.Subscriber)
	}
}
