// Package api provides the HTTP and WebSocket server for MindCare.
//
// It exposes the screening operations as REST endpoints, drives chat over a
// WebSocket, and wires the configured chat transport (WhatsApp or Twilio)
// to the session manager.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/MindCare/internal/flow"
	"github.com/BTreeMap/MindCare/internal/messaging"
	"github.com/BTreeMap/MindCare/internal/scheduler"
	"github.com/BTreeMap/MindCare/internal/store"
	"github.com/BTreeMap/MindCare/internal/twiliowhatsapp"
	"github.com/BTreeMap/MindCare/internal/whatsapp"
	"github.com/gorilla/mux"
)

// Default server configuration constants
const (
	// DefaultServerAddress is the default HTTP server address
	DefaultServerAddress = ":8080"
	// DefaultSessionTTL is how long an idle session is kept before the sweep removes it
	DefaultSessionTTL = 24 * time.Hour
	// DefaultShutdownTimeout bounds graceful HTTP shutdown
	DefaultShutdownTimeout = 10 * time.Second
)

// Chat channels selectable with WithChannel.
const (
	ChannelNone     = ""
	ChannelWhatsApp = "whatsapp"
	ChannelTwilio   = "twilio"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string        // overrides API_ADDR
	Channel          string        // chat transport: "", "whatsapp" or "twilio"
	SessionTTL       time.Duration // idle session lifetime
	SweepSchedule    string        // cron expression for the expired-session sweep
	TwilioWebhookURL string        // public webhook URL; enables signature checks when set
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithChannel selects the chat transport.
func WithChannel(channel string) Option {
	return func(o *Opts) { o.Channel = strings.ToLower(strings.TrimSpace(channel)) }
}

// WithSessionTTL sets how long idle sessions are kept.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithSweepSchedule sets the cron expression of the expired-session sweep.
func WithSweepSchedule(expr string) Option {
	return func(o *Opts) { o.SweepSchedule = expr }
}

// WithTwilioWebhookURL sets the public URL Twilio posts to, enabling
// X-Twilio-Signature verification.
func WithTwilioWebhookURL(url string) Option {
	return func(o *Opts) { o.TwilioWebhookURL = url }
}

func resolveOpts(opts []Option) Opts {
	cfg := Opts{SessionTTL: DefaultSessionTTL, SweepSchedule: scheduler.DefaultSweepSchedule}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = os.Getenv("API_ADDR")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultServerAddress
	}
	return cfg
}

// Server holds the collaborators behind the HTTP routes.
type Server struct {
	store   store.Store
	manager *flow.Manager
	twilio  *messaging.TwilioService // nil unless the Twilio channel is enabled
}

// NewServer creates a Server around a store and session manager.
func NewServer(st store.Store, manager *flow.Manager) *Server {
	return &Server{store: st, manager: manager}
}

// WithTwilio attaches a Twilio service so its webhook is routed.
func (s *Server) WithTwilio(svc *messaging.TwilioService) *Server {
	s.twilio = svc
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	r.HandleFunc("/sessions", s.createSessionHandler).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", s.getSessionHandler).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/text", s.submitTextHandler).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/choice", s.submitChoiceHandler).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/quit", s.quitHandler).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/restart", s.restartHandler).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/prompt", s.promptHandler).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/results", s.resultsHandler).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/transcript", s.transcriptHandler).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/ws", s.chatSocketHandler).Methods(http.MethodGet)

	r.HandleFunc("/profiles/{userID}", s.putProfileHandler).Methods(http.MethodPut)
	r.HandleFunc("/receipts", s.receiptsHandler).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/twilio", s.twilioWebhookHandler).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Server: request handled", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Run opens the store, starts the configured chat channel and the sweep,
// and serves HTTP until SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option, storeOpts []store.Option, apiOpts []Option) error {
	cfg := resolveOpts(apiOpts)
	slog.Debug("api.Run: configuration resolved", "addr", cfg.Addr, "channel", cfg.Channel, "session_ttl", cfg.SessionTTL, "sweep", cfg.SweepSchedule)

	var so store.Opts
	for _, opt := range storeOpts {
		opt(&so)
	}
	st, err := store.Open(so.DSN, storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	manager := flow.NewManager(st)
	server := NewServer(st, manager)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	msgService, err := startChannel(ctx, cfg, waOpts, twilioOpts)
	if err != nil {
		return err
	}
	if msgService != nil {
		defer msgService.Stop()
		if tw, ok := msgService.(*messaging.TwilioService); ok {
			server.WithTwilio(tw)
		}
		messaging.NewResponseHandler(msgService, manager, st).Start(ctx)
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.ScheduleSweep(ctx, cfg.SweepSchedule, manager, cfg.SessionTTL); err != nil {
		return err
	}

	httpServer := &http.Server{Addr: cfg.Addr, Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("MindCare API listening", "addr", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("api.Run: shutdown signal received")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// startChannel builds and starts the configured chat transport. It returns
// nil when no channel is configured.
func startChannel(ctx context.Context, cfg Opts, waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option) (messaging.Service, error) {
	var svc messaging.Service
	switch cfg.Channel {
	case ChannelNone:
		slog.Info("api.Run: no chat channel configured; HTTP and WebSocket only")
		return nil, nil
	case ChannelWhatsApp:
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		svc = messaging.NewWhatsAppService(client)
	case ChannelTwilio:
		client, err := twiliowhatsapp.NewClient(twilioOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		var tOpts []messaging.TwilioOption
		if cfg.TwilioWebhookURL != "" {
			tOpts = append(tOpts, messaging.WithSignatureValidation(client, cfg.TwilioWebhookURL))
		} else {
			slog.Warn("api.Run: Twilio webhook signature validation disabled (no webhook URL configured)")
		}
		svc = messaging.NewTwilioService(client, tOpts...)
	default:
		return nil, fmt.Errorf("unknown chat channel %q", cfg.Channel)
	}
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start %s channel: %w", cfg.Channel, err)
	}
	return svc, nil
}
