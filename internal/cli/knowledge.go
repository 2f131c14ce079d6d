package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newKnowledgeCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Query the knowledge base",
	}
	cmd.AddCommand(newKnowledgeSearchCommand(opts))
	cmd.AddCommand(newKnowledgeCategoryCommand(opts))
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newKnowledgeSearchCommand(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search FAQs, rules and documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			return writeJSON(cmd.OutOrStdout(), a.Knowledge.Search(cmd.Context(), args[0], limit))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum results per category")
	return cmd
}

func newKnowledgeCategoryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "category NAME",
		Short: "Summarize a knowledge category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			cc, err := a.Knowledge.CategoryContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cc == nil {
				return fmt.Errorf("category %q not found", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), cc)
		},
	}
}
