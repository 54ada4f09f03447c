package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/relayboard/internal/relay"
)

type relayRow struct {
	ID    int         `json:"id"`
	Name  string      `json:"name"`
	State relay.State `json:"state"`
}

var relaysCmd = &cobra.Command{
	Use:   "relays",
	Short: "List relays and their state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, done, err := deviceClient()
		if err != nil {
			return err
		}
		defer done()

		relays, err := client.ListRelays(commandContext(cmd))
		if relays == nil && err != nil {
			return fmt.Errorf("list relays: %w", err)
		}
		if err != nil {
			log.Warn().Err(err).Msg("Some relays could not be decoded")
		}

		rows := make([]relayRow, 0, len(relays))
		for _, r := range relays {
			rows = append(rows, relayRow{ID: r.ID, Name: r.Name, State: r.State})
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), rows)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATE")
		fmt.Fprintln(w, "--\t----\t-----")
		for _, r := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\n", r.ID, r.Name, r.State)
		}
		return w.Flush()
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <relay-id> on|off|toggle",
	Short: "Switch a relay",
	Example: `  relayboard toggle 1 on
  relayboard toggle 3 toggle`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid relay id %q", args[0])
		}

		client, done, err := deviceClient()
		if err != nil {
			return err
		}
		defer done()
		ctx := commandContext(cmd)

		var state relay.State
		if args[1] == "toggle" {
			relays, err := client.ListRelays(ctx)
			if relays == nil && err != nil {
				return fmt.Errorf("list relays: %w", err)
			}
			found := false
			for _, r := range relays {
				if r.ID == id {
					state, found = r.State.Toggled(), true
				}
			}
			if !found {
				return fmt.Errorf("relay %d not found", id)
			}
		} else if state, err = relay.ParseState(args[1]); err != nil {
			return err
		}

		if err := client.SetRelayState(ctx, id, state); err != nil {
			return fmt.Errorf("set relay %d %s: %w", id, state, err)
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), relayRow{ID: id, State: state})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Relay %d switched %s\n", id, state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(relaysCmd)
	rootCmd.AddCommand(toggleCmd)
}
