package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/relayboard/internal/relay"
)

var (
	ruleTime   string
	ruleTarget string
	ruleDays   string
)

type ruleRow struct {
	ID       int         `json:"id"`
	RelayID  int         `json:"relayId"`
	Time     string      `json:"time"`
	Target   relay.State `json:"target"`
	Days     []string    `json:"days"`
	NextFire *time.Time  `json:"nextFire,omitempty"`
}

func rowFor(r relay.AlarmRule, now time.Time) ruleRow {
	row := ruleRow{ID: r.ID, RelayID: r.RelayID, Time: r.Trigger.String(), Target: r.Target, Days: r.Weekdays.Names()}
	if next, ok := r.NextFire(now); ok {
		row.NextFire = &next
	}
	return row
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids[i] = n
	}
	return ids, nil
}

// parseDays parses a comma separated list of day names. "all" selects every day.
func parseDays(s string) (relay.Weekdays, error) {
	var w relay.Weekdays
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "all":
			for d := range w {
				w[d] = true
			}
			continue
		}
		d, err := relay.ParseWeekday(part)
		if err != nil {
			return w, err
		}
		w[d] = true
	}
	return w, nil
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the weekly alarm rules of a relay",
}

var rulesListCmd = &cobra.Command{
	Use:   "list <relay-id>",
	Short: "List the rules of a relay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		client, done, err := deviceClient()
		if err != nil {
			return err
		}
		defer done()

		rules, err := client.ListRules(commandContext(cmd), ids[0])
		if rules == nil && err != nil {
			return fmt.Errorf("list rules: %w", err)
		}
		if err != nil {
			log.Warn().Err(err).Msg("Some rules could not be decoded")
		}

		now := time.Now()
		rows := make([]ruleRow, 0, len(rules))
		for _, r := range rules {
			rows = append(rows, rowFor(r, now))
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), rows)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tTARGET\tDAYS\tNEXT")
		fmt.Fprintln(w, "--\t----\t------\t----\t----")
		for i, r := range rows {
			next := "-"
			if r.NextFire != nil {
				next = r.NextFire.Format("Mon 2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Time, r.Target, rules[i].Weekdays, next)
		}
		return w.Flush()
	},
}

var rulesAddCmd = &cobra.Command{
	Use:     "add <relay-id>",
	Short:   "Add a rule to a relay",
	Example: `  relayboard rules add 1 --time 07:30 --target on --days mon,tue,wed,thu,fri`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		rule := relay.DefaultDraft(ids[0])
		if rule.Trigger, err = relay.ParseTimeOfDay(ruleTime); err != nil {
			return err
		}
		if rule.Target, err = relay.ParseState(ruleTarget); err != nil {
			return err
		}
		if rule.Weekdays, err = parseDays(ruleDays); err != nil {
			return err
		}
		if err := rule.Validate(); err != nil {
			return err
		}

		client, done, err := deviceClient()
		if err != nil {
			return err
		}
		defer done()

		id, err := client.CreateRule(commandContext(cmd), ids[0], rule)
		if err != nil {
			return fmt.Errorf("create rule: %w", err)
		}
		rule.ID = id

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), rowFor(rule, time.Now()))
		}
		if id == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Rule added to relay %d\n", ids[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %d added to relay %d\n", id, ids[0])
		}
		return nil
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <relay-id> <rule-id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		client, done, err := deviceClient()
		if err != nil {
			return err
		}
		defer done()

		if err := client.DeleteRule(commandContext(cmd), ids[0], ids[1]); err != nil {
			return fmt.Errorf("delete rule: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule %d deleted from relay %d\n", ids[1], ids[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesDeleteCmd)

	rulesAddCmd.Flags().StringVar(&ruleTime, "time", "", "Trigger time, HH:MM or HH:MM:SS")
	rulesAddCmd.Flags().StringVar(&ruleTarget, "target", "on", "Target state, on or off")
	rulesAddCmd.Flags().StringVar(&ruleDays, "days", "", "Comma separated days (mon,tue,...) or all")
	_ = rulesAddCmd.MarkFlagRequired("time")
}
