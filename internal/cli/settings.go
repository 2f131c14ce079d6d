package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/BotRouter/internal/models"
)

func newSettingsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the bot persona",
	}
	cmd.AddCommand(newSettingsSetCommand(opts))
	cmd.AddCommand(newSettingsShowCommand(opts))
	return cmd
}

func newSettingsSetCommand(opts *options) *cobra.Command {
	var (
		userID                     int64
		name, description, welcome string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update bot name, description or welcome message (global unless --user-id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			var st *models.Settings
			if userID == 0 {
				st, err = a.Store.GetGlobalSettings()
			} else {
				st, err = a.Store.GetUserSettings(userID)
			}
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			if st == nil {
				st = &models.Settings{}
				if userID != 0 {
					uid := userID
					st.UserID = &uid
				}
			}
			if cmd.Flags().Changed("name") {
				st.BotName = name
			}
			if cmd.Flags().Changed("description") {
				st.BotDescription = description
			}
			if cmd.Flags().Changed("welcome") {
				st.BotWelcome = welcome
			}
			if err := a.Store.SaveSettings(st); err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}
			a.ClearCaches(cmd.Context())
			cmd.Printf("Settings %d saved\n", st.ID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user owning the settings row (0 for global)")
	cmd.Flags().StringVar(&name, "name", "", "bot name")
	cmd.Flags().StringVar(&description, "description", "", "bot description")
	cmd.Flags().StringVar(&welcome, "welcome", "", "welcome message")
	return cmd
}

func newSettingsShowCommand(opts *options) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved bot identity and welcome message",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := struct {
				Bot     models.BotInfo `json:"bot"`
				Welcome string         `json:"welcome"`
			}{
				Bot:     a.Resolver.BotInfo(ctx, userID),
				Welcome: a.Responses.WelcomeMessage(ctx, userID),
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user whose settings are resolved")
	return cmd
}
