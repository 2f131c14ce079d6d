package credentials

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/store"
)

func newSealer(t *testing.T) *Sealer {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	return s
}

func TestNewSealerRejectsBadKeys(t *testing.T) {
	tests := []string{
		"",
		"not base64!",
		base64.StdEncoding.EncodeToString([]byte("too short")),
	}
	for _, key := range tests {
		if _, err := NewSealer(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("NewSealer(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestSealOpen(t *testing.T) {
	s := newSealer(t)
	sealed, err := s.Seal("sk-secret")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(sealed, "sk-secret") {
		t.Fatal("ciphertext leaks the plaintext")
	}
	again, _ := s.Seal("sk-secret")
	if again == sealed {
		t.Error("expected a fresh nonce per seal")
	}
	plain, err := s.Open(sealed)
	if err != nil || plain != "sk-secret" {
		t.Errorf("Open() = %q, %v", plain, err)
	}

	other := newSealer(t)
	if _, err := other.Open(sealed); !errors.Is(err, ErrDecrypt) {
		t.Errorf("expected ErrDecrypt with another key, got %v", err)
	}
	if _, err := s.Open("AAAA"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("expected ErrDecrypt for short input, got %v", err)
	}
}

func TestUserAPIConfig(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	r := NewResolver(st, newSealer(t))

	if _, err := r.UserAPIConfig(ctx, 1); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider without settings, got %v", err)
	}

	if err := r.StoreAPIKey(ctx, 1, models.ProviderMistral, "mk-123", ""); err != nil {
		t.Fatalf("StoreAPIKey: %v", err)
	}
	cfg, err := r.UserAPIConfig(ctx, 1)
	if err != nil {
		t.Fatalf("UserAPIConfig: %v", err)
	}
	if cfg.Provider != models.ProviderMistral || cfg.APIKey != "mk-123" || cfg.Model != models.DefaultMistralModel {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if err := r.StoreAPIKey(ctx, 1, models.ProviderClaude, "ck-9", "claude-haiku-4-5"); err != nil {
		t.Fatalf("StoreAPIKey: %v", err)
	}
	cfg, _ = r.UserAPIConfig(ctx, 1)
	if cfg.Provider != models.ProviderClaude || cfg.APIKey != "ck-9" || cfg.Model != "claude-haiku-4-5" {
		t.Errorf("unexpected config after switching provider: %+v", cfg)
	}

	// another user does not inherit the credentials
	if _, err := r.UserAPIConfig(ctx, 2); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider for another user, got %v", err)
	}
}

func TestUserAPIConfigMissingKey(t *testing.T) {
	st := store.NewInMemoryStore()
	uid := int64(5)
	if err := st.SaveSettings(&models.Settings{UserID: &uid, CurrentProvider: models.ProviderOpenAI}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if _, err := NewResolver(st, newSealer(t)).UserAPIConfig(context.Background(), 5); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestStoreAPIKeyRejectsUnknownProvider(t *testing.T) {
	r := NewResolver(store.NewInMemoryStore(), newSealer(t))
	if err := r.StoreAPIKey(context.Background(), 1, "gemini", "k", ""); !errors.Is(err, models.ErrInvalidProvider) {
		t.Errorf("expected ErrInvalidProvider, got %v", err)
	}
}
