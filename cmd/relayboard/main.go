package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/relayboard/internal/config"
	"github.com/dokzlo13/relayboard/internal/db"
	"github.com/dokzlo13/relayboard/internal/ledger"
	"github.com/dokzlo13/relayboard/internal/logging"
	"github.com/dokzlo13/relayboard/internal/remote"
)

var (
	configPath string
	deviceURL  string
	jsonOutput bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "relayboard",
	Short: "Dashboard daemon and CLI for remote relays and their weekly alarm rules",
	Long: `relayboard polls a relay controller, keeps a reconciled view of its relays
and alarm rules, and serves that view over a local HTTP API and MQTT.
The one-shot commands talk to the controller directly.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&deviceURL, "device", "", "Controller base URL (overrides device.base_url)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing default config file falls back
// to the built-in defaults so one-shot commands work with just --device.
func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	default:
		return fmt.Errorf("load configuration: %w", err)
	}

	if deviceURL != "" {
		cfg.Device.BaseURL = deviceURL
	}

	logging.Setup(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)
	return nil
}

// deviceClient opens a client for one-shot commands. Mutations are recorded
// in the same ledger the daemon uses; a ledger that cannot be opened is
// skipped.
func deviceClient() (*remote.Client, func(), error) {
	rc := remote.Config{
		BaseURL:      cfg.Device.BaseURL,
		Timeout:      cfg.Device.Timeout.Duration(),
		Schema:       cfg.Device.Schema,
		RateLimitRPS: cfg.Device.RateLimitRPS,
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Debug().Err(err).Str("path", cfg.Database.Path).Msg("Mutation ledger unavailable")
	} else {
		rc.Recorder = ledger.New(database.DB)
	}

	client, err := remote.NewClient(rc)
	if err != nil {
		if database != nil {
			database.Close()
		}
		return nil, nil, err
	}

	closeFn := func() {
		client.Close()
		if database != nil {
			database.Close()
		}
	}
	return client, closeFn, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
