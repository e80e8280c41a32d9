package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/MindCare/internal/api"
	"github.com/BTreeMap/MindCare/internal/lockfile"
	"github.com/BTreeMap/MindCare/internal/scheduler"
	"github.com/BTreeMap/MindCare/internal/store"
	"github.com/BTreeMap/MindCare/internal/twiliowhatsapp"
	"github.com/BTreeMap/MindCare/internal/util"
	"github.com/BTreeMap/MindCare/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for MindCare state data
	DefaultStateDir = "/var/lib/mindcare"
	// DefaultAppDBFileName is the default SQLite filename for sessions and transcripts
	DefaultAppDBFileName = "mindcare.db"
	// DefaultWhatsAppDBFileName is the default SQLite filename for the whatsmeow device store
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	var lock *lockfile.Lock
	if needsStateLock(flags) {
		var err error
		if lock, err = lockfile.AcquireLock(*flags.stateDir); err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			os.Exit(1)
		}
	}

	waOpts := buildWhatsAppOptions(flags)
	twilioOpts := buildTwilioOptions(flags)
	storeOpts := buildStoreOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping MindCare with configured modules")
	slog.Debug("Module options counts", "whatsapp", len(waOpts), "twilio", len(twilioOpts), "store", len(storeOpts), "api", len(apiOpts))
	err := api.Run(waOpts, twilioOpts, storeOpts, apiOpts)
	if releaseErr := lock.Release(); releaseErr != nil {
		slog.Warn("Failed to release state directory lock", "error", releaseErr)
	}
	if err != nil {
		slog.Error("MindCare failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("MindCare exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	ApplicationDBDSN string // sessions, transcripts, profiles
	WhatsAppDBDSN    string // whatsmeow device store
	RedisURL         string
	InMemory         bool
	APIAddr          string
	Channel          string
	SessionTTL       time.Duration
	SweepSchedule    string
	TwilioSID        string
	TwilioToken      string
	TwilioFrom       string
	TwilioWebhookURL string
	NumericCode      bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput         *string
	numeric          *bool
	stateDir         *string
	appDBDSN         *string
	whatsappDBDSN    *string
	redisURL         *string
	inMemory         *bool
	apiAddr          *string
	channel          *string
	sessionTTL       *time.Duration
	sweepSchedule    *string
	twilioSID        *string
	twilioToken      *string
	twilioFrom       *string
	twilioWebhookURL *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

func defaultAppDSN(stateDir string) string {
	return filepath.Join(stateDir, DefaultAppDBFileName)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("MINDCARE_STATE_DIR"),
		ApplicationDBDSN: os.Getenv("DATABASE_URL"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		RedisURL:         os.Getenv("REDIS_URL"),
		InMemory:         util.ParseBoolEnv("MINDCARE_IN_MEMORY", false),
		APIAddr:          os.Getenv("API_ADDR"),
		Channel:          os.Getenv("MINDCARE_CHANNEL"),
		SessionTTL:       util.ParseDurationEnv("SESSION_TTL", api.DefaultSessionTTL),
		SweepSchedule:    os.Getenv("SWEEP_SCHEDULE"),
		TwilioSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL: os.Getenv("TWILIO_WEBHOOK_URL"),
		NumericCode:      util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No MINDCARE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = defaultAppDSN(config.StateDir)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}
	if config.SweepSchedule == "" {
		config.SweepSchedule = scheduler.DefaultSweepSchedule
	}

	slog.Debug("environment variables loaded",
		"MINDCARE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.ApplicationDBDSN != "",
		"REDIS_URL_SET", config.RedisURL != "",
		"MINDCARE_IN_MEMORY", config.InMemory,
		"API_ADDR", config.APIAddr,
		"MINDCARE_CHANNEL", config.Channel,
		"SESSION_TTL", config.SessionTTL,
		"SWEEP_SCHEDULE", config.SweepSchedule,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "")
	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		qrOutput:         fs.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:          fs.Bool("numeric-code", config.NumericCode, "use numeric login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		stateDir:         fs.String("state-dir", config.StateDir, "state directory for MindCare data (overrides $MINDCARE_STATE_DIR)"),
		appDBDSN:         fs.String("db-dsn", config.ApplicationDBDSN, "session database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		whatsappDBDSN:    fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)"),
		redisURL:         fs.String("redis-url", config.RedisURL, "Redis URL; when set sessions are kept in Redis (overrides $REDIS_URL)"),
		inMemory:         fs.Bool("in-memory", config.InMemory, "keep sessions in memory only (overrides $MINDCARE_IN_MEMORY)"),
		apiAddr:          fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		channel:          fs.String("channel", config.Channel, "chat channel: whatsapp, twilio or empty (overrides $MINDCARE_CHANNEL)"),
		sessionTTL:       fs.Duration("session-ttl", config.SessionTTL, "idle session lifetime (overrides $SESSION_TTL)"),
		sweepSchedule:    fs.String("sweep-schedule", config.SweepSchedule, "cron schedule for the expired-session sweep (overrides $SWEEP_SCHEDULE)"),
		twilioSID:        fs.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:      fs.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:       fs.String("twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
		twilioWebhookURL: fs.String("twilio-webhook-url", config.TwilioWebhookURL, "public Twilio webhook URL for signature checks (overrides $TWILIO_WEBHOOK_URL)"),
	}

	if err := fs.Parse(args); err != nil {
		slog.Warn("flag parsing failed", "error", err)
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"appDBDSN_set", *flags.appDBDSN != "",
		"redisURL_set", *flags.redisURL != "",
		"inMemory", *flags.inMemory,
		"apiAddr", *flags.apiAddr,
		"channel", *flags.channel,
		"sessionTTL", *flags.sessionTTL,
		"sweepSchedule", *flags.sweepSchedule)

	// Default DSNs follow a state directory given only on the command line
	if *flags.stateDir != config.StateDir {
		if *flags.appDBDSN == defaultAppDSN(config.StateDir) {
			*flags.appDBDSN = defaultAppDSN(*flags.stateDir)
		}
		if *flags.whatsappDBDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.whatsappDBDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
		slog.Debug("Updated default DSNs based on state directory", "state_dir", *flags.stateDir)
	}
	return flags
}

// ensureDirectoriesExist creates parent directories for file-based databases
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.appDBDSN, *flags.whatsappDBDSN} {
		if dsn == "" || store.DetectDSNType(dsn) != store.DriverSQLite {
			continue
		}
		dir := filepath.Dir(sqlitePath(dsn))
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	return nil
}

// needsStateLock reports whether this process will write SQLite files that
// must not be shared: the application database when it is the active store,
// or the whatsmeow device store when the WhatsApp channel is on.
func needsStateLock(flags Flags) bool {
	isSQLite := func(dsn string) bool {
		return dsn != "" && store.DetectDSNType(dsn) == store.DriverSQLite
	}
	appOnSQLite := !*flags.inMemory && *flags.redisURL == "" && isSQLite(*flags.appDBDSN)
	waOnSQLite := strings.EqualFold(strings.TrimSpace(*flags.channel), api.ChannelWhatsApp) && isSQLite(*flags.whatsappDBDSN)
	return appOnSQLite || waOnSQLite
}

// sqlitePath strips the file: scheme and query parameters from a SQLite DSN.
func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	return path
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDBDSN))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if *flags.twilioSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(*flags.twilioToken))
	}
	if *flags.twilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(*flags.twilioFrom))
	}
	return opts
}

// buildStoreOptions constructs store configuration options. Redis wins over
// the SQL DSN; in-memory mode wins over both.
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	switch {
	case *flags.inMemory:
		slog.Debug("In-memory mode requested, sessions will not persist")
	case *flags.redisURL != "":
		slog.Debug("Configuring Redis store", "dsn_type", "redis")
		storeOpts = append(storeOpts, store.WithRedisURL(*flags.redisURL), store.WithTTL(*flags.sessionTTL))
	case *flags.appDBDSN != "":
		if store.DetectDSNType(*flags.appDBDSN) == store.DriverPostgres {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.appDBDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.appDBDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.appDBDSN))
		}
	default:
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithChannel(*flags.channel),
		api.WithSessionTTL(*flags.sessionTTL),
		api.WithSweepSchedule(*flags.sweepSchedule),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.twilioWebhookURL != "" {
		apiOpts = append(apiOpts, api.WithTwilioWebhookURL(*flags.twilioWebhookURL))
	}
	return apiOpts
}
