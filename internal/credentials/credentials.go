// Package credentials encrypts provider API keys at rest and resolves the
// decrypted provider configuration of a user.
package credentials

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/store"
)

// KeySize is the length of the sealing key in bytes.
const KeySize = 32

const nonceSize = 24

// Error variables for better error handling and testability
var (
	ErrInvalidKey = errors.New("secret key must be 32 bytes, base64 encoded")
	ErrDecrypt    = errors.New("failed to decrypt api key")
	ErrNoProvider = errors.New("no provider configured")
	ErrNoAPIKey   = errors.New("no api key stored for provider")
)

// Sealer encrypts and decrypts API keys with NaCl secretbox. Ciphertexts are
// base64(nonce || box).
type Sealer struct {
	key [KeySize]byte
}

// NewSealer parses a base64 encoded 32 byte key.
func NewSealer(encodedKey string) (*Sealer, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(raw) != KeySize {
		return nil, ErrInvalidKey
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// GenerateKey returns a new random base64 encoded key.
func GenerateKey() (string, error) {
	var key [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// Seal encrypts plaintext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// APIConfig is a user's decrypted provider selection.
type APIConfig struct {
	Provider models.Provider `json:"provider"`
	APIKey   string          `json:"-"`
	Model    string          `json:"model"`
}

// Resolver loads provider credentials from user settings.
type Resolver struct {
	settings store.SettingsRepo
	sealer   *Sealer
}

// NewResolver creates a Resolver.
func NewResolver(settings store.SettingsRepo, sealer *Sealer) *Resolver {
	return &Resolver{settings: settings, sealer: sealer}
}

// UserAPIConfig returns the decrypted provider configuration of userID. Only
// the user's own settings row is consulted.
func (r *Resolver) UserAPIConfig(ctx context.Context, userID int64) (*APIConfig, error) {
	st, err := r.settings.GetUserSettings(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if st == nil || st.CurrentProvider == "" {
		return nil, ErrNoProvider
	}
	encrypted := st.EncryptedKey(st.CurrentProvider)
	if encrypted == "" {
		return nil, ErrNoAPIKey
	}
	key, err := r.sealer.Open(encrypted)
	if err != nil {
		slog.Error("Resolver.UserAPIConfig: failed to decrypt key", "user_id", userID, "provider", st.CurrentProvider)
		return nil, err
	}
	return &APIConfig{
		Provider: st.CurrentProvider,
		APIKey:   key,
		Model:    st.ModelFor(st.CurrentProvider),
	}, nil
}

// StoreAPIKey encrypts apiKey into the settings row of userID, creating the
// row if needed, and selects provider as current.
func (r *Resolver) StoreAPIKey(ctx context.Context, userID int64, provider models.Provider, apiKey, model string) error {
	if !models.IsValidProvider(provider) {
		return models.ErrInvalidProvider
	}
	sealed, err := r.sealer.Seal(apiKey)
	if err != nil {
		return err
	}
	st, err := r.settings.GetUserSettings(userID)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if st == nil {
		uid := userID
		st = &models.Settings{UserID: &uid}
	}
	st.CurrentProvider = provider
	switch provider {
	case models.ProviderOpenAI:
		st.EncryptedOpenAIKey = sealed
		if model != "" {
			st.OpenAIModel = model
		}
	case models.ProviderMistral:
		st.EncryptedMistralKey = sealed
		if model != "" {
			st.MistralModel = model
		}
	case models.ProviderClaude:
		st.EncryptedClaudeKey = sealed
		if model != "" {
			st.ClaudeModel = model
		}
	}
	if err := r.settings.SaveSettings(st); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
