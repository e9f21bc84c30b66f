package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "Print the acceleration modes the configured engine supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := a.newController()
			for _, m := range ctrl.AvailableAccelerationModes() {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}
