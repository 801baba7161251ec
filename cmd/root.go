// Package cmd implements the discord-archiver command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/discord-archiver/archive"
	"github.com/onnwee/discord-archiver/config"
	"github.com/onnwee/discord-archiver/discord"
	"github.com/onnwee/discord-archiver/mirror"
	"github.com/onnwee/discord-archiver/prompt"
	"github.com/onnwee/discord-archiver/server"
	"github.com/onnwee/discord-archiver/telemetry"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "discord-archiver",
		Short: "Archive a Discord conversation or server to append-only text logs",
		Long: `discord-archiver drains the full message history of a DM, group DM, server
channel or every text channel of a server into a log file, then keeps
appending new messages as they arrive until interrupted.

Inputs not given as flags or environment variables are asked for:
  1. token
  2. Group/DM ID, or "none" to archive a server
  3. server ID
  4. channel ID, or "every" for all text channels`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd)
		},
	}

	f := root.Flags()
	f.String("token", "", "Discord token (env DISCORD_TOKEN)")
	f.Bool("bot", false, "treat the token as a bot token (env DISCORD_BOT_TOKEN)")
	f.String("conversation", "", `DM or group DM ID, "none" for server mode (env ARCHIVE_CONVERSATION)`)
	f.String("server", "", "server ID (env ARCHIVE_SERVER)")
	f.String("channel", "", `channel ID or "every" (env ARCHIVE_CHANNEL)`)
	f.String("logs-dir", "", "directory for log files (env LOGS_DIR)")
	f.String("http-addr", "", "status server address, empty disables (env HTTP_ADDR)")
	f.Int("page-size", 0, "history page size 1-100 (env ARCHIVE_PAGE_SIZE)")
	f.Int("live-buffer", 0, "live messages buffered while history drains (env ARCHIVE_LIVE_BUFFER)")
	f.String("nats-url", "", "NATS server to mirror entries to (env NATS_URL)")

	root.AddCommand(versionCmd)
	return root
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("discord-archiver %s\n", Version)
	},
}

// applyFlags overrides cfg with flags set explicitly on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("token") {
		cfg.Token, _ = f.GetString("token")
	}
	if f.Changed("bot") {
		cfg.BotToken, _ = f.GetBool("bot")
	}
	if f.Changed("conversation") {
		cfg.Conversation, _ = f.GetString("conversation")
	}
	if f.Changed("server") {
		cfg.Server, _ = f.GetString("server")
	}
	if f.Changed("channel") {
		cfg.Channel, _ = f.GetString("channel")
	}
	if f.Changed("logs-dir") {
		cfg.LogsDir, _ = f.GetString("logs-dir")
	}
	if f.Changed("http-addr") {
		cfg.HTTPAddr, _ = f.GetString("http-addr")
	}
	if f.Changed("page-size") {
		cfg.PageSize, _ = f.GetInt("page-size")
	}
	if f.Changed("live-buffer") {
		cfg.LiveBuffer, _ = f.GetInt("live-buffer")
	}
	if f.Changed("nats-url") {
		cfg.NATSURL, _ = f.GetString("nats-url")
	}
}

func run(cmd *cobra.Command) error {
	// Load .env file if present (local dev convenience only)
	_ = godotenv.Load()
	setupLogging(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	telemetry.Init()
	runID := uuid.New().String()
	shutdown, err := telemetry.InitTracing("discord-archiver", Version, runID)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer shutdown()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = telemetry.WithCorrelation(ctx, runID)
	logger := telemetry.LoggerWithCorr(ctx)

	answers, err := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout()).Complete(prompt.Answers{
		Token:        cfg.Token,
		Conversation: cfg.Conversation,
		Server:       cfg.Server,
		Channel:      cfg.Channel,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	discord.BridgeLogs(slog.Default())
	client, err := discord.New(discord.Config{Token: answers.Token, Bot: cfg.BotToken, Logger: logger})
	if err != nil {
		return err
	}
	if _, err := client.Open(); err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("discord close failed", slog.Any("err", err))
		}
	}()

	var pub archive.Publisher
	if cfg.MirrorEnabled() {
		p, err := mirror.Connect(mirror.Config{URL: cfg.NATSURL, Token: cfg.NATSToken, SubjectPrefix: cfg.NATSSubjectPrefix, Logger: logger})
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				logger.Warn("mirror close failed", slog.Any("err", err))
			}
		}()
		pub = p
		logger.Info("mirroring entries to nats", slog.String("url", cfg.NATSURL), slog.String("prefix", cfg.NATSSubjectPrefix))
	}

	coord := archive.NewCoordinator(client, archive.CoordinatorConfig{
		LogsDir:    cfg.LogsDir,
		PageSize:   cfg.PageSize,
		LiveBuffer: cfg.LiveBuffer,
		Publisher:  pub,
		Logger:     logger,
	})
	defer func() {
		if err := coord.Close(); err != nil {
			logger.Warn("closing log files failed", slog.Any("err", err))
		}
	}()

	if cfg.HTTPAddr != "" {
		go func() {
			if err := server.Start(ctx, cfg.HTTPAddr, coord); err != nil {
				logger.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	report, err := coord.Run(ctx, answers.Target())
	if err != nil {
		return err
	}
	logger.Info("history archived, logging new messages",
		slog.String("log_file", report.LogFile),
		slog.Int("channels", len(report.Channels)),
		slog.Int("failed_channels", report.Failed()),
		slog.Int("replayed", report.Replayed),
	)

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
