package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krillca/krill/pkg/eventsourcing"
)

var (
	historyOffset int
	historyRows   int
)

var historyCmd = &cobra.Command{
	Use:   "history <handle>",
	Short: "Show the paginated command history for one aggregate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		var crit eventsourcing.CommandHistoryCriteria
		crit.SetOffset(historyOffset)
		crit.SetRows(historyRows)

		history, err := store.CommandHistory(context.Background(), args[0], crit)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}

		fmt.Printf("%d commands total, showing %d from offset %d\n",
			history.Total(), len(history.Commands()), history.Offset())
		for _, c := range history.Commands() {
			fmt.Printf("#%d\t%s\t%s\t%s\t%s\n", c.Sequence, c.Time.Format("2006-01-02T15:04:05Z07:00"), c.Actor, c.Effect.Kind, c.Summary)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "number of commands to skip")
	historyCmd.Flags().IntVar(&historyRows, "rows", 20, "maximum number of commands to show")
}
