package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mossvale/blight/internal/api"
	"github.com/mossvale/blight/internal/blight"
	"github.com/mossvale/blight/internal/healing"
	"github.com/mossvale/blight/internal/lockfile"
	"github.com/mossvale/blight/internal/narrative"
	"github.com/mossvale/blight/internal/notify"
	"github.com/mossvale/blight/internal/scheduler"
	"github.com/mossvale/blight/internal/store"
	"github.com/mossvale/blight/internal/sweeper"
	"github.com/mossvale/blight/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for blightd state data
	DefaultStateDir = "/var/lib/blightd"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "blight.db"
	// DefaultSweepCron runs the missed-roll sweep at the top of every hour.
	DefaultSweepCron = "0 * * * *"
	// DefaultAnnounceCron fires the roll call when the daily window opens
	// (20:00 UTC-5 is 01:00 UTC).
	DefaultAnnounceCron = "0 1 * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("blightd failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("blightd exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	OpenAIKey    string
	DiscordToken string
	ChannelID    string
	RoleID       string
	APIAddr      string
	SweepCron    string
	AnnounceCron string
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	discordToken *string
	channelID    *string
	roleID       *string
	apiAddr      *string
	sweepCron    *string
	announceCron *string
}

// initializeLogger sets up structured logging. BLIGHTD_DEBUG enables
// debug-level output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("BLIGHTD_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("BLIGHTD_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		DiscordToken: os.Getenv("DISCORD_BOT_TOKEN"),
		ChannelID:    os.Getenv("BLIGHT_CHANNEL_ID"),
		RoleID:       os.Getenv("BLIGHT_ROLE_ID"),
		APIAddr:      os.Getenv("API_ADDR"),
		SweepCron:    os.Getenv("SWEEP_SCHEDULE"),
		AnnounceCron: os.Getenv("ANNOUNCE_SCHEDULE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BLIGHTD_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.SweepCron == "" {
		config.SweepCron = DefaultSweepCron
	}
	if config.AnnounceCron == "" {
		config.AnnounceCron = DefaultAnnounceCron
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"BLIGHTD_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"DISCORD_BOT_TOKEN_SET", config.DiscordToken != "",
		"BLIGHT_CHANNEL_ID", config.ChannelID,
		"API_ADDR", config.APIAddr,
		"SWEEP_SCHEDULE", config.SweepCron,
		"ANNOUNCE_SCHEDULE", config.AnnounceCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for blightd data (overrides $BLIGHTD_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for healer narration (overrides $OPENAI_API_KEY)"),
		discordToken: flag.String("discord-token", config.DiscordToken, "Discord bot token (overrides $DISCORD_BOT_TOKEN)"),
		channelID:    flag.String("channel-id", config.ChannelID, "Discord channel for the daily roll call (overrides $BLIGHT_CHANNEL_ID)"),
		roleID:       flag.String("role-id", config.RoleID, "Discord role mentioned in the roll call (overrides $BLIGHT_ROLE_ID)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sweepCron:    flag.String("sweep-cron", config.SweepCron, "cron schedule for the missed-roll sweep (overrides $SWEEP_SCHEDULE)"),
		announceCron: flag.String("announce-cron", config.AnnounceCron, "cron schedule for the roll-call announcement (overrides $ANNOUNCE_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"discordTokenSet", *flags.discordToken != "",
		"apiAddr", *flags.apiAddr,
		"sweepCron", *flags.sweepCron,
		"announceCron", *flags.announceCron)

	// Follow a moved state directory when the DSN was derived from it.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildNarrator selects the narration generator: OpenAI-backed when a key is
// configured, the static template pool otherwise.
func buildNarrator(flags Flags) narrative.Generator {
	if *flags.openaiKey == "" {
		slog.Info("No OpenAI API key configured, using static narration")
		return narrative.NewStaticGenerator()
	}
	gen, err := narrative.NewGenAIGenerator(narrative.WithAPIKey(*flags.openaiKey))
	if err != nil {
		slog.Warn("Failed to initialize OpenAI narration, falling back to static", "error", err)
		return narrative.NewStaticGenerator()
	}
	slog.Info("Using OpenAI-backed healer narration")
	return gen
}

// buildNotifier selects the notification transport: Discord when a bot token
// is configured, a logging no-op otherwise.
func buildNotifier(flags Flags) (notify.Service, error) {
	if *flags.discordToken == "" {
		slog.Info("No Discord bot token configured, notifications disabled")
		return notify.NewNoopService(), nil
	}
	return notify.NewDiscordService(notify.WithToken(*flags.discordToken))
}

func run(flags Flags) error {
	// Exclusive hold on the state directory before touching the database.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.FromOpts(buildStoreOptions(flags)...)
	if err != nil {
		return err
	}
	defer st.Close()

	notifier, err := buildNotifier(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := notifier.Start(ctx); err != nil {
		return err
	}
	defer notifier.Stop()

	engine := blight.NewEngine(st)
	directory := healing.DefaultDirectory(buildNarrator(flags))
	ttlDays := util.ParseIntEnv("BLIGHT_REQUEST_TTL_DAYS", 30)
	workflow := healing.NewWorkflow(st, directory, engine,
		healing.WithRequestTTL(time.Duration(ttlDays)*24*time.Hour))
	swp := sweeper.NewSweeper(st, engine, workflow, notifier)
	announcer := sweeper.NewAnnouncer(notifier, *flags.channelID, *flags.roleID)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.sweepCron, func() {
		if _, err := swp.Sweep(ctx); err != nil {
			slog.Error("Scheduled sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}
	if err := sched.AddJob(*flags.announceCron, func() {
		if err := announcer.Announce(ctx); err != nil {
			slog.Error("Scheduled roll call failed", "error", err)
		}
	}); err != nil {
		return err
	}
	slog.Info("Periodic jobs scheduled", "sweep", *flags.sweepCron, "announce", *flags.announceCron)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(engine, workflow, swp, st, apiOpts...)

	slog.Info("Bootstrapping blightd with configured modules")
	return server.Run(ctx)
}
