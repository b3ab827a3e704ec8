package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"eraforge.game/internal/persistence/journal"
)

func newJournalCommand(opts *options) *cobra.Command {
	var event string
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the milestone journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := journal.ReadDir(filepath.Join(opts.dataDir, "journal"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				if event != "" && e.Event != event {
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", e.Time, e.Era, e.Event, string(e.Data))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&event, "event", "", "only print this event")
	return cmd
}
