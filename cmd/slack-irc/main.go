// Copyright 2025-2026 Mantene

// Command slack-irc is a bidirectional relay between Slack workspaces and
// IRC networks. Each configured bridge maps Slack channels to IRC
// channels, mirrors messages both ways, and maintains ephemeral per-user
// IRC identities for active Slack users.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/util/exzerolog"

	"github.com/Mantene/slack-irc/pkg/bridge"
	"github.com/Mantene/slack-irc/pkg/transport/ircconn"
	"github.com/Mantene/slack-irc/pkg/transport/slackrtm"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:     "slack-irc",
	Short:   "A bidirectional Slack-IRC relay",
	Version: fmt.Sprintf("%s (%s, built %s)", Tag, Commit, BuildTime),
	RunE:    run,

	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := bridge.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		logLevel = cfg.LogLevel
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(level)
	exzerolog.SetupDefaults(&log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, len(cfg.Bridges))
	var wg sync.WaitGroup
	for i := range cfg.Bridges {
		bc := cfg.Bridges[i]
		blog := log.With().Str("bridge", bc.Name).Logger()

		slackTransport := slackrtm.New(blog, bc.SlackToken)
		ircTransport := ircconn.New(blog, bc.IRC)
		shadows := ircconn.NewShadows(blog, bc.IRC, ircChannels(bc.ChannelMapping))
		externalizer := slackrtm.NewSnippetExternalizer(blog, slackTransport.API(), "")

		b, err := bridge.New(bc, blog, slackTransport, ircTransport, shadows, externalizer)
		if err != nil {
			return err
		}
		shadows.Bind(b)
		slackTransport.Start(b)
		ircTransport.Start(b)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer slackTransport.Stop()
			defer ircTransport.Stop()
			defer shadows.Stop()
			if err := b.Run(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("bridge %s: %w", bc.Name, err)
				cancel()
			}
		}()
		blog.Info().Str("irc_server", bc.IRC.Server).Msg("Bridge started")
	}

	<-ctx.Done()
	wg.Wait()
	select {
	case err := <-errCh:
		// A bridge died on its own (e.g. IRC reconnects exhausted);
		// documented behavior is a process-level exit.
		return err
	default:
		return nil
	}
}

func ircChannels(mapping map[string]string) []string {
	channels := make([]string, 0, len(mapping))
	for _, ircChan := range mapping {
		channels = append(channels, ircChan)
	}
	return channels
}
