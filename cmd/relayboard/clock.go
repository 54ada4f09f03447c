package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/relayboard/internal/relay"
)

var adjust relay.TimeAdjustment

type clockRow struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func printClock(cmd *cobra.Command, t relay.DeviceTime) error {
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), clockRow{Date: t.Date(), Time: t.Clock()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", t.Date(), t.Clock())
	return nil
}

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Show the controller clock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, done, err := deviceClient()
		if err != nil {
			return err
		}
		defer done()

		t, err := client.GetServerTime(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("get clock: %w", err)
		}
		return printClock(cmd, t)
	},
}

var clockAdjustCmd = &cobra.Command{
	Use:     "adjust",
	Short:   "Nudge the controller clock",
	Example: `  relayboard clock adjust --minutes -3 --date 2024-05-01`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, done, err := deviceClient()
		if err != nil {
			return err
		}
		defer done()

		ctx := commandContext(cmd)
		t, err := client.AdjustServerTime(ctx, adjust)
		if err != nil {
			return fmt.Errorf("adjust clock: %w", err)
		}
		if t == (relay.DeviceTime{}) {
			// The controller only acknowledged; read the clock back
			if t, err = client.GetServerTime(ctx); err != nil {
				return fmt.Errorf("get clock: %w", err)
			}
		}
		return printClock(cmd, t)
	},
}

func init() {
	rootCmd.AddCommand(clockCmd)
	clockCmd.AddCommand(clockAdjustCmd)

	clockAdjustCmd.Flags().IntVar(&adjust.Hours, "hours", 0, "Hours to add (negative to subtract)")
	clockAdjustCmd.Flags().IntVar(&adjust.Minutes, "minutes", 0, "Minutes to add")
	clockAdjustCmd.Flags().IntVar(&adjust.Seconds, "seconds", 0, "Seconds to add")
	clockAdjustCmd.Flags().StringVar(&adjust.Date, "date", "", "Set the date, YYYY-MM-DD")
}
