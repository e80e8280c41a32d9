package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", mock.SentMessages[0].Body)
	}

	mock.Err = errors.New("rate limited")
	if err := mock.SendMessage(ctx, "12345", "again"); err == nil {
		t.Error("expected configured error")
	}
	if len(mock.Sent()) != 1 {
		t.Error("failed send should not be recorded")
	}
}

func TestResolveOpts(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC-env")
	t.Setenv("TWILIO_AUTH_TOKEN", "token-env")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550000")

	cfg := ResolveOpts()
	if cfg.AccountSID != "AC-env" || cfg.AuthToken != "token-env" {
		t.Errorf("env fallback not applied: %+v", cfg)
	}
	if cfg.FromWhats != "whatsapp:+15550000" {
		t.Errorf("FromWhats = %q, want whatsapp prefix added", cfg.FromWhats)
	}

	cfg = ResolveOpts(WithAccountSID("AC-opt"), WithFromWhats("whatsapp:+1999"))
	if cfg.AccountSID != "AC-opt" || cfg.FromWhats != "whatsapp:+1999" {
		t.Errorf("options should win over env: %+v", cfg)
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without sender number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+1555"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.ValidateSignature("https://example.com/webhooks/twilio", map[string]string{"Body": "hi"}, "bogus") {
		t.Error("bogus signature accepted")
	}
}
