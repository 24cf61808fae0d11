package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/meterload/internal/core/mappers"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history METER",
	Short: "Show recent ingests of a meter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.service.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tSTATUS\tFILE\tACCEPTED\tWRITTEN\tDURATION\tSOURCE")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				r.CreatedAt.Local().Format(time.DateTime), r.Status, r.FileName,
				r.RowsAccepted, r.RowsWritten, r.Duration, r.Source)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of ingests to show")
	rootCmd.AddCommand(historyCmd)
}

func printMappers(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tEND-ONLY\tCOLUMNS")
	for _, d := range mappers.All() {
		fmt.Fprintf(tw, "%s\t%t\t%v\n", d.Name, d.EndOnly, d.Columns)
	}
	tw.Flush()
}
