package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/meterload/internal/admin"
)

var (
	resetHistory bool
	resetYes     bool
)

var resetCmd = &cobra.Command{
	Use:   "reset METER",
	Short: "Delete a meter's stored readings and clear its baseline",
	Long: `Delete every stored reading of METER and return it to the unseeded state.
The next upload for the meter starts a fresh baseline. Run this while no
server is ingesting into the meter.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return errors.New("refusing to reset without --yes")
		}

		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := (&admin.Resetter{DB: a.pool}).ResetMeter(cmd.Context(), args[0], resetHistory)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted %d readings", res.Meter, res.Readings)
		if resetHistory {
			fmt.Fprintf(cmd.OutOrStdout(), " and %d ingest records", res.Ingests)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetHistory, "history", false, "also delete the meter's ingest history")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "confirm the reset")
	rootCmd.AddCommand(resetCmd)
}
