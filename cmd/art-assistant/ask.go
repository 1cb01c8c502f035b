package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <text>...",
	Short: "Send one line to the assistant and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		result := a.dispatcher.Dispatch(ctx, strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), result.Text)
		return nil
	},
}
