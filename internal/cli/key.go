package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/BotRouter/internal/credentials"
	"github.com/BTreeMap/BotRouter/internal/models"
)

var errNoSecretKey = errors.New("BOTROUTER_SECRET_KEY is not set")

func newKeyCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage encrypted provider API keys",
	}
	cmd.AddCommand(newKeyGenerateCommand())
	cmd.AddCommand(newKeySetCommand(opts))
	cmd.AddCommand(newKeyTestCommand(opts))
	return cmd
}

func newKeyGenerateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Print a new random value for BOTROUTER_SECRET_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := credentials.GenerateKey()
			if err != nil {
				return err
			}
			cmd.Println(key)
			return nil
		},
	}
}

func newKeySetCommand(opts *options) *cobra.Command {
	var (
		userID                  int64
		provider, apiKey, model string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Encrypt and store a provider key for a user and select that provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := models.Provider(provider)
			if !models.IsValidProvider(p) {
				return fmt.Errorf("unknown provider %q", provider)
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Credentials == nil {
				return errNoSecretKey
			}

			if err := a.Credentials.StoreAPIKey(cmd.Context(), userID, p, apiKey, model); err != nil {
				return fmt.Errorf("failed to store api key: %w", err)
			}
			cmd.Printf("Stored %s key for user %d\n", p, userID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user owning the key")
	cmd.Flags().StringVar(&provider, "provider", string(models.ProviderOpenAI), "provider: openai, mistral or claude")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "provider API key")
	cmd.Flags().StringVar(&model, "model", "", "model name (provider default when empty)")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("api-key")
	return cmd
}

func newKeyTestCommand(opts *options) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send a minimal request with the user's stored key",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Credentials == nil {
				return errNoSecretKey
			}

			cfg, err := a.Credentials.UserAPIConfig(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("no usable key for user %d: %w", userID, err)
			}
			res := a.Dispatcher.TestConnection(cmd.Context(), cfg.Provider, cfg.APIKey, cfg.Model)
			if res.Failed() {
				return fmt.Errorf("%s connection failed: %s", cfg.Provider, res.Error)
			}
			cmd.Printf("%s connection OK (model %s, %s)\n", cfg.Provider, res.Model, res.Duration)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user whose key is tested")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
