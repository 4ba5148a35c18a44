package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <flags>...",
	Short: "Explain raw FSEvents flag values such as 0x10100",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			raw, err := strconv.ParseUint(arg, 0, 32)
			if err != nil {
				return fmt.Errorf("invalid flag value %q: %w", arg, err)
			}

			flags := model.FlagSet(raw)
			actions, item, control := model.Decode(flags)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tactions: %s\ttype: %s\tcontrol: %s\n", flags, actions, item, control)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
