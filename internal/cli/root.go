// Package cli implements botctl, the BotRouter operator command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/BotRouter/internal/app"
	"github.com/BTreeMap/BotRouter/internal/store"
)

const version = "0.1.0"

type options struct {
	dsn    string
	config app.Config
}

// open wires the application against the selected store.
func (o *options) open() (*app.App, error) {
	if o.dsn != "" && store.DetectDSNType(o.dsn) == store.DSNTypeSQLite {
		if err := os.MkdirAll(filepath.Dir(o.dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return app.New(o.config, o.dsn)
}

// NewRoot returns the botctl command tree.
func NewRoot() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "botctl",
		Short:         "Operate BotRouter: flows, bot settings, provider keys and local questions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			opts.config = cfg
			if !cmd.Flags().Changed("db-dsn") {
				opts.dsn = cfg.DatabaseURL
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.dsn, "db-dsn", "", "database DSN (defaults to $DATABASE_URL, then the state directory SQLite file)")

	root.AddCommand(newFlowCommand(opts))
	root.AddCommand(newSettingsCommand(opts))
	root.AddCommand(newKeyCommand(opts))
	root.AddCommand(newKnowledgeCommand(opts))
	root.AddCommand(newAskCommand(opts))
	root.AddCommand(newStatsCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
