package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/BotRouter/internal/decision"
	"github.com/BTreeMap/BotRouter/internal/models"
)

func newAskCommand(opts *options) *cobra.Command {
	var (
		userID int64
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ask MESSAGE",
		Short: "Run one message through the decision engine against the local store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.ChatRequest{Message: strings.Join(args, " "), UserID: userID}
			if err := req.Validate(); err != nil {
				return err
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.Engine.Respond(cmd.Context(), req)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			cmd.Printf("[%s] %s\n", resp.Mode, resp.Message)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user sending the message")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}

func newStatsCommand() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Fetch decision statistics from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimRight(server, "/") + "/api/stats"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: timeout}
			res, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to reach %s: %w", url, err)
			}
			defer res.Body.Close()

			if res.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s", res.Status)
			}
			var body struct {
				Result decision.Statistics `json:"result"`
			}
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				return fmt.Errorf("failed to decode stats: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), body.Result)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "BotRouter API base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}
