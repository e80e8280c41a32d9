package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/MindCare/internal/flow"
	"github.com/BTreeMap/MindCare/internal/models"
	"github.com/BTreeMap/MindCare/internal/store"
	"github.com/BTreeMap/MindCare/internal/whatsapp"
)

type failingChat struct{}

func (failingChat) HandleMessage(ctx context.Context, userID, text string) ([]string, error) {
	return nil, errors.New("store offline")
}

func TestResponseHandler_ProcessResponse(t *testing.T) {
	st := store.NewInMemoryStore()
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	handler := NewResponseHandler(svc, flow.NewManager(st), st)

	ctx := context.Background()
	if err := handler.ProcessResponse(ctx, models.Response{From: "+15551234567", Body: "hi", Time: 1}); err != nil {
		t.Fatalf("ProcessResponse: %v", err)
	}
	sent := mockClient.Sent()
	if len(sent) != 1 || sent[0].To != "15551234567" || !strings.HasPrefix(sent[0].Body, "Hello!") {
		t.Fatalf("expected greeting reply, got %+v", sent)
	}

	rec, err := st.GetLatestSessionByUser("+15551234567")
	if err != nil || rec == nil {
		t.Fatalf("session not created for sender: %v", err)
	}
	responses, _ := st.GetResponses()
	if len(responses) != 1 || responses[0].Body != "hi" {
		t.Errorf("inbound message not recorded: %+v", responses)
	}
}

func TestResponseHandler_DropsRedelivery(t *testing.T) {
	st := store.NewInMemoryStore()
	mockClient := whatsapp.NewMockClient()
	handler := NewResponseHandler(NewWhatsAppService(mockClient), flow.NewManager(st), st)

	msg := models.Response{ID: "wamid.1", From: "+15551234567", Body: "hi", Time: 1}
	for i := 0; i < 2; i++ {
		if err := handler.ProcessResponse(context.Background(), msg); err != nil {
			t.Fatalf("ProcessResponse #%d: %v", i, err)
		}
	}
	if sent := mockClient.Sent(); len(sent) != 1 {
		t.Errorf("expected one reply for a redelivered message, got %d", len(sent))
	}
	if dup, _ := st.IsDuplicate("wamid.1"); !dup {
		t.Error("message ID not recorded")
	}
	if responses, _ := st.GetResponses(); len(responses) != 1 {
		t.Errorf("redelivery recorded twice: %+v", responses)
	}
}

func TestResponseHandler_ChatFailureSendsErrorReply(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	handler := NewResponseHandler(NewWhatsAppService(mockClient), failingChat{}, nil)

	if err := handler.ProcessResponse(context.Background(), models.Response{From: "+15551234567", Body: "hi"}); err == nil {
		t.Fatal("expected error")
	}
	sent := mockClient.Sent()
	if len(sent) != 1 || sent[0].Body != ErrorReply {
		t.Errorf("expected error reply, got %+v", sent)
	}
}

func TestResponseHandler_InvalidSender(t *testing.T) {
	handler := NewResponseHandler(NewWhatsAppService(whatsapp.NewMockClient()), failingChat{}, nil)
	if err := handler.ProcessResponse(context.Background(), models.Response{From: "nobody", Body: "hi"}); err == nil {
		t.Error("expected invalid sender error")
	}
}

func TestResponseHandler_StartRecordsReceiptsAndReplies(t *testing.T) {
	st := store.NewInMemoryStore()
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	handler := NewResponseHandler(svc, flow.NewManager(st), st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler.Start(ctx)

	svc.emitResponse(models.Response{From: "+15551234567", Body: "hello", Time: time.Now().Unix()})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		receipts, _ := st.GetReceipts()
		if len(receipts) > 0 && len(mockClient.Sent()) > 0 {
			if receipts[0].Status != models.MessageStatusSent {
				t.Errorf("unexpected receipt %+v", receipts[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reply or receipt not observed")
}
