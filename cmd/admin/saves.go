package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"eraforge.game/internal/persistence/savestore"
)

func newSlotsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "List save slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer b.Close()
			slots, err := b.Slots()
			if err != nil {
				return err
			}
			for _, s := range slots {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func newHistoryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List retained writes of a slot (sqlite only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openSQLite()
			if err != nil {
				return err
			}
			defer db.Close()
			hist, err := db.History(opts.slotName())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, h := range hist {
				fmt.Fprintf(out, "%d\t%s\t%d bytes\t%s\n", h.ID, h.SavedAt, h.Size, h.Digest[:12])
			}
			return nil
		},
	}
}

func newRollbackCommand(opts *options) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore a slot from a retained write",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id <= 0 {
				return fmt.Errorf("missing --id (see admin history)")
			}
			db, err := opts.openSQLite()
			if err != nil {
				return err
			}
			defer db.Close()
			slot := opts.slotName()
			data, err := db.ReadHistory(slot, id)
			if err != nil {
				return fmt.Errorf("history %d: %w", id, err)
			}
			store, err := opts.newStore()
			if err != nil {
				return err
			}
			if err := store.ValidateDocument(data); err != nil {
				return fmt.Errorf("history %d is not a valid save: %w", id, err)
			}
			if err := db.Write(slot, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rollback ok: slot=%s from=%d size=%d\n", slot, id, len(data))
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "history entry id")
	return cmd
}

func newExportCommand(opts *options) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a slot to a compressed save file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer b.Close()
			slot := opts.slotName()
			data, err := b.Read(slot)
			if err != nil {
				return fmt.Errorf("read slot %s: %w", slot, err)
			}
			if strings.TrimSpace(outPath) == "" {
				outPath = slot + ".save.zst"
			}
			if err := savestore.WriteFile(outPath, slot, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export ok: slot=%s out=%s size=%d\n", slot, outPath, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output path (default: <slot>.save.zst)")
	return cmd
}

func newImportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.save.zst>",
		Short: "Validate a compressed save file and write it to a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, data, err := savestore.ReadFile(args[0])
			if err != nil {
				return err
			}
			store, err := opts.newStore()
			if err != nil {
				return err
			}
			if _, err := store.Decode(data); err != nil {
				return err
			}
			slot := opts.slot
			if slot == "" {
				slot = h.Slot
			}
			if slot == "" {
				slot = opts.slotName()
			}
			b, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.Write(slot, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "import ok: slot=%s written_at=%s size=%d\n", slot, h.WrittenAt, len(data))
			return nil
		},
	}
}

func newValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <save.json>",
		Short: "Check a save document against the save schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			store, err := opts.newStore()
			if err != nil {
				return err
			}
			if err := store.ValidateDocument(data); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}

func newMigrateCommand(opts *options) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "migrate <save.json>",
		Short: "Rewrite a legacy save document in the current format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			store, err := opts.newStore()
			if err != nil {
				return err
			}
			if err := store.LoadBytes(data); err != nil {
				return err
			}
			migrated, err := store.Encode()
			if err != nil {
				return err
			}
			if strings.TrimSpace(outPath) == "" {
				_, err := cmd.OutOrStdout().Write(append(migrated, '\n'))
				return err
			}
			return os.WriteFile(outPath, migrated, 0o644)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output path (default: stdout)")
	return cmd
}
