package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/MindCare/internal/models"
	"github.com/BTreeMap/MindCare/internal/twiliowhatsapp"
)

func postForm(t *testing.T, h http.HandlerFunc, form url.Values, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set("X-Twilio-Signature", signature)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestTwilioService_SendMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	if err := svc.SendMessage(context.Background(), "whatsapp:+15551234567", "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got := mock.Sent(); len(got) != 1 || got[0].To != "15551234567" {
		t.Errorf("unexpected sends %+v", got)
	}
	if r := <-svc.Receipts(); r.Status != models.MessageStatusSent || r.To != "+15551234567" {
		t.Errorf("unexpected receipt %+v", r)
	}
}

func TestTwilioService_WebhookInboundMessage(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rr := postForm(t, svc.TwilioWebhookHandler, url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hello"}, "MessageSid": {"SM123"}}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "<Response>") {
		t.Errorf("expected TwiML body, got %q", rr.Body.String())
	}
	select {
	case resp := <-svc.Responses():
		if resp.From != "+15551234567" || resp.Body != "hello" || resp.ID != "SM123" {
			t.Errorf("unexpected response %+v", resp)
		}
	default:
		t.Fatal("expected inbound response")
	}
}

func TestTwilioService_WebhookRejectsBadRequests(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	tests := []struct {
		name string
		form url.Values
	}{
		{"missing body", url.Values{"From": {"whatsapp:+15551234567"}}},
		{"missing from", url.Values{"Body": {"hi"}}},
		{"short number", url.Values{"From": {"whatsapp:+123"}, "Body": {"hi"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := postForm(t, svc.TwilioWebhookHandler, tt.form, ""); rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestTwilioService_StatusCallback(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rr := postForm(t, svc.TwilioWebhookHandler, url.Values{"To": {"whatsapp:+15551234567"}, "MessageStatus": {"delivered"}}, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if r := <-svc.Receipts(); r.Status != models.MessageStatusDelivered {
		t.Errorf("unexpected receipt %+v", r)
	}
}

type fixedValidator struct{ want string }

func (v fixedValidator) ValidateSignature(url string, params map[string]string, signature string) bool {
	return signature == v.want && params["Body"] != ""
}

func TestTwilioService_SignatureValidation(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(),
		WithSignatureValidation(fixedValidator{want: "good"}, "https://mindcare.example/webhooks/twilio"))
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hi"}}

	if rr := postForm(t, svc.TwilioWebhookHandler, form, "bad"); rr.Code != http.StatusForbidden {
		t.Errorf("bad signature status = %d, want 403", rr.Code)
	}
	if rr := postForm(t, svc.TwilioWebhookHandler, form, "good"); rr.Code != http.StatusOK {
		t.Errorf("good signature status = %d, want 200", rr.Code)
	}
}
