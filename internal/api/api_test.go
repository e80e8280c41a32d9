package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/MindCare/internal/flow"
	"github.com/BTreeMap/MindCare/internal/messaging"
	"github.com/BTreeMap/MindCare/internal/models"
	"github.com/BTreeMap/MindCare/internal/screening"
	"github.com/BTreeMap/MindCare/internal/store"
	"github.com/BTreeMap/MindCare/internal/twiliowhatsapp"
	"github.com/gorilla/websocket"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	return NewServer(st, flow.NewManager(st)), st
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, rr.Body.String(), err)
	}
	return rr, env
}

func decodeTurn(t *testing.T, env envelope) flow.Turn {
	t.Helper()
	var turn flow.Turn
	if err := json.Unmarshal(env.Result, &turn); err != nil {
		t.Fatalf("decode turn: %v", err)
	}
	return turn
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rr, env := do(t, h, http.MethodPost, "/sessions", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: status %d (%s)", rr.Code, env.Message)
	}
	return decodeTurn(t, env).SessionID
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rr, env := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || env.Status != "ok" {
		t.Errorf("healthz: %d %+v", rr.Code, env)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	id := createSession(t, h)

	rr, env := do(t, h, http.MethodPost, "/sessions/"+id+"/text", `{"text":"I feel anxious"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("text: %d %s", rr.Code, env.Message)
	}
	if turn := decodeTurn(t, env); turn.Phase.Kind != screening.PhaseConsent || len(turn.Utterances) != 2 {
		t.Errorf("unexpected greeting turn %+v", turn)
	}

	_, env = do(t, h, http.MethodPost, "/sessions/"+id+"/text", `{"text":"yes"}`)
	turn := decodeTurn(t, env)
	if turn.Phase.Kind != screening.PhaseK10 || turn.Prompt == nil || turn.Prompt.Index != 0 {
		t.Fatalf("expected first K10 prompt, got %+v", turn)
	}

	rr, env = do(t, h, http.MethodGet, "/sessions/"+id+"/prompt", "")
	if rr.Code != http.StatusOK || !strings.Contains(string(env.Result), `"instrument":"K10"`) {
		t.Errorf("prompt: %d %s", rr.Code, env.Result)
	}

	for i := 0; i < 10; i++ {
		rr, env = do(t, h, http.MethodPost, "/sessions/"+id+"/choice", `{"value":1}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("choice %d: %d %s", i, rr.Code, env.Message)
		}
	}
	if turn := decodeTurn(t, env); turn.Phase.Kind != screening.PhaseEnd {
		t.Errorf("low K10 should end, got %s", turn.Phase)
	}

	rr, env = do(t, h, http.MethodGet, "/sessions/"+id+"/prompt", "")
	if rr.Code != http.StatusOK || env.Message != "No question pending" {
		t.Errorf("prompt after end: %d %+v", rr.Code, env)
	}

	rr, env = do(t, h, http.MethodGet, "/sessions/"+id+"/transcript", "")
	var entries []models.TranscriptEntry
	if err := json.Unmarshal(env.Result, &entries); err != nil || rr.Code != http.StatusOK || len(entries) == 0 {
		t.Errorf("transcript: %d %v %d entries", rr.Code, err, len(entries))
	}

	rr, env = do(t, h, http.MethodPost, "/sessions/"+id+"/restart", "")
	if rr.Code != http.StatusOK || decodeTurn(t, env).Phase.Kind != screening.PhaseGreeting {
		t.Errorf("restart: %d %+v", rr.Code, env)
	}
}

func TestErrorMapping(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	id := createSession(t, h)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown session", http.MethodGet, "/sessions/missing", "", http.StatusNotFound},
		{"choice in greeting", http.MethodPost, "/sessions/" + id + "/choice", `{"value":1}`, http.StatusConflict},
		{"results before completion", http.MethodGet, "/sessions/" + id + "/results", "", http.StatusConflict},
		{"quit in greeting", http.MethodPost, "/sessions/" + id + "/quit", "", http.StatusOK},
		{"missing choice value", http.MethodPost, "/sessions/" + id + "/choice", `{}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/sessions/" + id + "/text", `{"text":`, http.StatusBadRequest},
		{"text after quit", http.MethodPost, "/sessions/" + id + "/text", `{"text":"hi"}`, http.StatusConflict},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/sessions/" + id, "", http.StatusMethodNotAllowed},
		{"twilio disabled", http.MethodPost, "/webhooks/twilio", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := do(t, h, tt.method, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rr.Code, tt.want, env.Message)
			}
			if tt.want >= 400 && env.Status != "error" {
				t.Errorf("expected error envelope, got %+v", env)
			}
		})
	}
}

func TestInvalidChoiceIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	id := createSession(t, h)
	do(t, h, http.MethodPost, "/sessions/"+id+"/text", `{"text":"I am sad"}`)
	do(t, h, http.MethodPost, "/sessions/"+id+"/text", `{"text":"sure"}`)

	rr, env := do(t, h, http.MethodPost, "/sessions/"+id+"/choice", `{"value":6}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (%s)", rr.Code, env.Message)
	}
}

func TestFullScreeningResults(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	id := createSession(t, h)
	do(t, h, http.MethodPost, "/sessions/"+id+"/text", `{"text":"I feel depressed"}`)
	do(t, h, http.MethodPost, "/sessions/"+id+"/text", `{"text":"yes"}`)

	answer := func(value string, times int) {
		for i := 0; i < times; i++ {
			if rr, env := do(t, h, http.MethodPost, "/sessions/"+id+"/choice", `{"value":`+value+`}`); rr.Code != http.StatusOK {
				t.Fatalf("choice: %d %s", rr.Code, env.Message)
			}
		}
	}
	answer("3", 10) // K10 30
	answer("2", 9)  // PHQ-9 18
	answer("1", 7)  // GAD-7 7
	answer("1", 10) // PSS-10 10

	rr, env := do(t, h, http.MethodGet, "/sessions/"+id+"/results", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("results: %d %s", rr.Code, env.Message)
	}
	var report screening.Report
	if err := json.Unmarshal(env.Result, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.K10 != 30 || report.Scores.PHQ9 != 18 || report.Interpretation.Dominant != "Depressive Symptoms" {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestProfileGreeting(t *testing.T) {
	s, st := newTestServer(t)
	h := s.Handler()

	rr, env := do(t, h, http.MethodPut, "/profiles/user-1", `{"display_name":"  Sam  "}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put profile: %d %s", rr.Code, env.Message)
	}
	if p, _ := st.GetProfile("user-1"); p == nil || p.DisplayName != "Sam" {
		t.Fatalf("profile not stored: %+v", p)
	}

	rr, env = do(t, h, http.MethodPost, "/sessions", `{"user_id":"user-1"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	if turn := decodeTurn(t, env); !strings.HasPrefix(turn.Utterances[0], "Hello, Sam!") {
		t.Errorf("greeting = %q", turn.Utterances[0])
	}

	long := strings.Repeat("x", models.MaxDisplayNameLength+1)
	if rr, _ := do(t, h, http.MethodPut, "/profiles/user-1", `{"display_name":"`+long+`"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("long name status = %d, want 400", rr.Code)
	}
}

func TestReceipts(t *testing.T) {
	s, st := newTestServer(t)
	if err := st.AddReceipt(models.Receipt{To: "+15551234567", Status: models.MessageStatusDelivered, Time: 1}); err != nil {
		t.Fatal(err)
	}
	rr, env := do(t, s.Handler(), http.MethodGet, "/receipts", "")
	var receipts []models.Receipt
	if err := json.Unmarshal(env.Result, &receipts); err != nil || rr.Code != http.StatusOK || len(receipts) != 1 {
		t.Errorf("receipts: %d %v %+v", rr.Code, err, receipts)
	}
}

func TestTwilioWebhookRoute(t *testing.T) {
	s, _ := newTestServer(t)
	svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	s.WithTwilio(svc)

	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hi"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", rr.Code)
	}
	select {
	case resp := <-svc.Responses():
		if resp.Body != "hi" {
			t.Errorf("unexpected response %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("inbound message not forwarded")
	}
}

func TestChatSocket(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	id := createSession(t, s.Handler())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() envelope {
		t.Helper()
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read: %v", err)
		}
		return env
	}

	if turn := decodeTurn(t, read()); turn.Phase.Kind != screening.PhaseGreeting {
		t.Fatalf("snapshot phase = %s", turn.Phase)
	}

	conn.WriteJSON(ChatFrame{Type: FrameText, Text: "I'm so tired"})
	if turn := decodeTurn(t, read()); turn.Phase.Kind != screening.PhaseConsent {
		t.Fatalf("phase after greeting = %s", turn.Phase)
	}
	conn.WriteJSON(ChatFrame{Type: FrameText, Text: "yes"})
	if turn := decodeTurn(t, read()); turn.Prompt == nil {
		t.Fatal("expected K10 prompt")
	}

	bad := 9
	conn.WriteJSON(ChatFrame{Type: FrameChoice, Value: &bad})
	if env := read(); env.Status != "error" {
		t.Errorf("expected error for out-of-range choice, got %+v", env)
	}
	conn.WriteJSON(ChatFrame{Type: "dance"})
	if env := read(); env.Status != "error" || env.Message != errUnknownFrame.Error() {
		t.Errorf("expected unknown frame error, got %+v", env)
	}
	conn.WriteJSON(ChatFrame{Type: FrameQuit})
	if turn := decodeTurn(t, read()); turn.Phase.Kind != screening.PhaseEnd {
		t.Errorf("phase after quit = %s", turn.Phase)
	}
}

func TestChatSocketUnknownSession(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/sessions/missing/ws", nil)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 handshake response, got %+v", resp)
	}
}

func TestResolveOpts(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	cfg := resolveOpts(nil)
	if cfg.Addr != ":9999" || cfg.SessionTTL != DefaultSessionTTL || cfg.SweepSchedule == "" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	cfg = resolveOpts([]Option{WithAddr(":7000"), WithChannel(" Twilio "), WithSessionTTL(time.Hour), WithSweepSchedule("0 * * * *"), WithTwilioWebhookURL("https://x/webhooks/twilio")})
	if cfg.Addr != ":7000" || cfg.Channel != ChannelTwilio || cfg.SessionTTL != time.Hour || cfg.SweepSchedule != "0 * * * *" || cfg.TwilioWebhookURL == "" {
		t.Errorf("options not applied %+v", cfg)
	}
}
