package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var firmwareCmd = &cobra.Command{
	Use:   "firmware <file>",
	Short: "Upload a firmware image to the controller",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		client, done, err := deviceClient()
		if err != nil {
			return err
		}
		defer done()

		msg, err := client.UploadFirmware(commandContext(cmd), filepath.Base(args[0]), f)
		if err != nil {
			return fmt.Errorf("upload firmware: %w", err)
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"message": msg})
		}
		if msg == "" {
			msg = "Firmware uploaded"
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(firmwareCmd)
}
