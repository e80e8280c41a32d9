package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/MindCare/internal/models"
)

// ErrorReply is sent when a message could not be processed.
const ErrorReply = "Sorry, something went wrong on our side. Please send your answer again."

// ChatHandler turns one inbound message into the reply lines for that user.
// flow.Manager implements it.
type ChatHandler interface {
	HandleMessage(ctx context.Context, userID, text string) ([]string, error)
}

// EventSink persists receipts and inbound messages.
type EventSink interface {
	AddReceipt(r models.Receipt) error
	AddResponse(r models.Response) error
}

// Deduplicator filters transport redeliveries by message ID. A sink that
// also implements it is consulted before a message reaches the chat flow.
type Deduplicator interface {
	RecordInbound(messageID, userID string) (bool, error)
	MarkProcessed(messageID string) error
}

// ResponseHandler drains a Service's event channels: inbound messages are
// routed through the ChatHandler and the reply is sent back; receipts are
// recorded in the sink.
type ResponseHandler struct {
	msgService Service
	chat       ChatHandler
	sink       EventSink
}

// NewResponseHandler wires a transport to a chat handler. sink may be nil.
func NewResponseHandler(msgService Service, chat ChatHandler, sink EventSink) *ResponseHandler {
	return &ResponseHandler{msgService: msgService, chat: chat, sink: sink}
}

// ProcessResponse handles one inbound message and sends the reply as a
// single message with lines separated by blank lines.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: invalid sender", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}
	dedup, _ := rh.sink.(Deduplicator)
	if dedup != nil && response.ID != "" {
		fresh, err := dedup.RecordInbound(response.ID, "+"+canonicalFrom)
		if err != nil {
			slog.Warn("ResponseHandler.ProcessResponse: dedup check failed", "error", err, "messageID", response.ID)
		} else if !fresh {
			slog.Info("ResponseHandler.ProcessResponse: dropping redelivered message", "messageID", response.ID, "from", canonicalFrom)
			return nil
		}
	}
	if rh.sink != nil {
		if err := rh.sink.AddResponse(response); err != nil {
			slog.Warn("ResponseHandler.ProcessResponse: failed to record response", "error", err, "from", canonicalFrom)
		}
	}

	// Users are keyed by the "+digits" form so both transports agree.
	lines, err := rh.chat.HandleMessage(ctx, "+"+canonicalFrom, response.Body)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: chat handler failed", "error", err, "from", canonicalFrom)
		if sendErr := rh.msgService.SendMessage(ctx, canonicalFrom, ErrorReply); sendErr != nil {
			slog.Error("ResponseHandler.ProcessResponse: failed to send error reply", "error", sendErr, "from", canonicalFrom)
		}
		return fmt.Errorf("handle message: %w", err)
	}
	if dedup != nil && response.ID != "" {
		if err := dedup.MarkProcessed(response.ID); err != nil {
			slog.Warn("ResponseHandler.ProcessResponse: failed to mark processed", "error", err, "messageID", response.ID)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	if err := rh.msgService.SendMessage(ctx, canonicalFrom, strings.Join(lines, "\n\n")); err != nil {
		slog.Error("ResponseHandler.ProcessResponse: failed to send reply", "error", err, "from", canonicalFrom)
		return fmt.Errorf("send reply: %w", err)
	}
	slog.Debug("ResponseHandler.ProcessResponse: reply sent", "from", canonicalFrom, "lines", len(lines))
	return nil
}

// Start processes events in the background until ctx is cancelled or the
// service closes its channels.
func (rh *ResponseHandler) Start(ctx context.Context) {
	go func() {
		defer slog.Info("ResponseHandler stopped response processing")
		responses := rh.msgService.Responses()
		receipts := rh.msgService.Receipts()
		for responses != nil || receipts != nil {
			select {
			case response, ok := <-responses:
				if !ok {
					responses = nil
					continue
				}
				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", response.From)
				}
			case receipt, ok := <-receipts:
				if !ok {
					receipts = nil
					continue
				}
				if rh.sink != nil {
					if err := rh.sink.AddReceipt(receipt); err != nil {
						slog.Warn("ResponseHandler failed to record receipt", "error", err, "to", receipt.To)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	slog.Info("ResponseHandler response processing started")
}
