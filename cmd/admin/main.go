package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"eraforge.game/internal/persistence/savestore"
	"eraforge.game/internal/sim/catalogs"
	"eraforge.game/internal/sim/state"
	"eraforge.game/internal/sim/tuning"
)

type options struct {
	dataDir   string
	backend   string
	configDir string
	slot      string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "admin",
		Short: "Offline save management for eraforge",
		Long: `admin inspects, repairs and moves save slots without a running server.

Examples:
  admin slots
  admin history --slot main
  admin rollback --slot main --id 42
  admin export --slot main --out backup.save.zst
  admin migrate old.json --out new.json
  admin journal`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data", "./data", "runtime data directory")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "sqlite", "save backend: sqlite or file")
	root.PersistentFlags().StringVar(&opts.configDir, "configs", "./configs", "config directory")
	root.PersistentFlags().StringVar(&opts.slot, "slot", "", "save slot (default: tuning save_slot)")

	root.AddCommand(
		newSlotsCommand(opts),
		newHistoryCommand(opts),
		newRollbackCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newValidateCommand(opts),
		newMigrateCommand(opts),
		newJournalCommand(opts),
		newStateCommand(),
		newSaveCommand(),
	)
	return root
}

func (o *options) openBackend() (savestore.Backend, error) {
	return savestore.Open(o.backend, o.dataDir)
}

func (o *options) openSQLite() (*savestore.SQLite, error) {
	if o.backend != "sqlite" {
		return nil, fmt.Errorf("history needs the sqlite backend, have %q", o.backend)
	}
	return savestore.OpenSQLite(filepath.Join(o.dataDir, "saves.sqlite"), savestore.DefaultHistory)
}

// newStore builds a detached store used to decode, repair and re-encode
// documents against the catalogs.
func (o *options) newStore() (*state.Store, error) {
	cats, err := catalogs.Load(o.configDir)
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}
	return state.New(state.Config{Catalogs: cats, Tuning: o.tuning()})
}

// tuning falls back to the built-in defaults when the configs have none.
func (o *options) tuning() tuning.Tuning {
	if t, err := tuning.Load(filepath.Join(o.configDir, "tuning.yaml")); err == nil {
		return t
	}
	return tuning.Defaults()
}

func (o *options) slotName() string {
	if o.slot != "" {
		return o.slot
	}
	return o.tuning().SaveSlot
}
