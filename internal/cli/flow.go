package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/BotRouter/internal/models"
)

func newFlowCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage conversation flows",
	}
	cmd.AddCommand(newFlowImportCommand(opts))
	cmd.AddCommand(newFlowListCommand(opts))
	cmd.AddCommand(newFlowActivateCommand(opts, true))
	cmd.AddCommand(newFlowActivateCommand(opts, false))
	return cmd
}

func newFlowImportCommand(opts *options) *cobra.Command {
	var activate bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a flow graph (flow, nodes, connections) from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read flow file: %w", err)
			}
			var g models.FlowGraph
			if err := json.Unmarshal(data, &g); err != nil {
				return fmt.Errorf("failed to parse flow file %s: %w", args[0], err)
			}
			g.Flow.ID = 0
			if activate {
				g.Flow.IsActive = true
			}

			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Flows.ValidateGuards(&g); err != nil {
				return fmt.Errorf("invalid connection guard: %w", err)
			}
			if err := a.Store.SaveFlowGraph(&g); err != nil {
				return fmt.Errorf("failed to save flow: %w", err)
			}
			a.Flows.ClearCache(cmd.Context())
			cmd.Printf("Imported flow %d %q: %d nodes, %d connections, active=%t\n",
				g.Flow.ID, g.Flow.Name, len(g.Nodes), len(g.Connections), g.Flow.IsActive)
			return nil
		},
	}
	cmd.Flags().BoolVar(&activate, "activate", false, "mark the imported flow active")
	return cmd
}

func newFlowListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			flows, err := a.Store.ListFlows()
			if err != nil {
				return fmt.Errorf("failed to list flows: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tACTIVE")
			for _, f := range flows {
				fmt.Fprintf(w, "%d\t%s\t%t\n", f.ID, f.Name, f.IsActive)
			}
			return w.Flush()
		},
	}
}

func newFlowActivateCommand(opts *options, active bool) *cobra.Command {
	use, short := "activate ID", "Mark a flow active"
	if !active {
		use, short = "deactivate ID", "Mark a flow inactive"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid flow id %q", args[0])
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.SetFlowActive(id, active); err != nil {
				return fmt.Errorf("failed to update flow %d: %w", id, err)
			}
			a.Flows.ClearCache(cmd.Context())
			cmd.Printf("Flow %d active=%t\n", id, active)
			return nil
		},
	}
}
