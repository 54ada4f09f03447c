package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/relayboard/internal/app"
)

var resetState bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dashboard daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().Str("config", configPath).Msg("Starting relayboard")

		application, err := app.New(cfg)
		if err != nil {
			return err
		}

		if resetState {
			log.Info().Msg("Clearing persisted view (--reset-state)")
			if err := application.ClearState(); err != nil {
				log.Warn().Err(err).Msg("Failed to clear persisted view")
			}
		}

		// Create context that cancels on shutdown signal
		ctx := app.SignalContext()

		if err := application.Start(ctx); err != nil {
			application.Stop()
			return err
		}

		application.Wait()

		if err := application.Stop(); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&resetState, "reset-state", false, "Clear the persisted view on startup")
}
