package persona

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/BotRouter/internal/cache"
	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/store"
)

var lea = models.BotInfo{Name: "Léa", Description: "Je suis conseillère en voyages chez Horizon."}

func newResolver(t *testing.T, rows ...models.Settings) (*Resolver, *store.InMemoryStore) {
	t.Helper()
	s := store.NewInMemoryStore()
	for i := range rows {
		if err := s.SaveSettings(&rows[i]); err != nil {
			t.Fatalf("SaveSettings failed: %v", err)
		}
	}
	return NewResolver(s, cache.NewMemory[models.BotInfo](30*time.Second)), s
}

func uid(v int64) *int64 { return &v }

func TestResolverFallbackChain(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults without rows", func(t *testing.T) {
		r, _ := newResolver(t)
		if got := r.BotInfo(ctx, 0); got != models.DefaultBotInfo() {
			t.Errorf("expected defaults, got %+v", got)
		}
	})

	t.Run("user row wins", func(t *testing.T) {
		r, _ := newResolver(t,
			models.Settings{BotName: "Global"},
			models.Settings{UserID: uid(5), BotName: "Léa", BotDescription: "Guide."},
		)
		if got := r.BotInfo(ctx, 5); got.Name != "Léa" || got.Description != "Guide." {
			t.Errorf("expected user identity, got %+v", got)
		}
	})

	t.Run("user row without name falls back to global", func(t *testing.T) {
		r, _ := newResolver(t,
			models.Settings{UserID: uid(5)},
			models.Settings{BotName: "Global"},
		)
		if got := r.BotInfo(ctx, 5); got.Name != "Global" {
			t.Errorf("expected global identity, got %+v", got)
		}
	})

	t.Run("first row when no global row", func(t *testing.T) {
		r, _ := newResolver(t, models.Settings{UserID: uid(9), BotName: "Autre"})
		got := r.BotInfo(ctx, 5)
		if got.Name != "Autre" || got.Description != models.DefaultBotDescription {
			t.Errorf("expected first row with default description, got %+v", got)
		}
	})
}

func TestResolverCachesUntilCleared(t *testing.T) {
	ctx := context.Background()
	r, s := newResolver(t, models.Settings{BotName: "Avant"})

	if got := r.BotInfo(ctx, 0); got.Name != "Avant" {
		t.Fatalf("unexpected name %q", got.Name)
	}
	row, _ := s.GetGlobalSettings()
	row.BotName = "Après"
	if err := s.SaveSettings(row); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if got := r.BotInfo(ctx, 0); got.Name != "Avant" {
		t.Errorf("expected cached name, got %q", got.Name)
	}
	r.ClearCache(ctx, 0)
	if got := r.BotInfo(ctx, 0); got.Name != "Après" {
		t.Errorf("expected refreshed name, got %q", got.Name)
	}
}

type failingSettings struct{ store.SettingsRepo }

func (failingSettings) GetUserSettings(int64) (*models.Settings, error) {
	return nil, errors.New("db down")
}
func (failingSettings) GetGlobalSettings() (*models.Settings, error) {
	return nil, errors.New("db down")
}

func TestResolverStorageErrorUsesDefaults(t *testing.T) {
	r := NewResolver(failingSettings{}, cache.NewMemory[models.BotInfo](time.Minute))
	if got := r.BotInfo(context.Background(), 3); got != models.DefaultBotInfo() {
		t.Errorf("expected defaults on error, got %+v", got)
	}
}

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()
	tests := []struct {
		message  string
		wantType QuestionType
		wantResp string
	}{
		{"Comment tu t'appelles ?", QuestionIdentity, "Je m'appelle Léa."},
		{"Quel est ton métier ?", QuestionProfession, lea.Description},
		{"Que sais-tu faire ?", QuestionCapabilities, lea.IdentitySentence()},
		{"Présente-toi s'il te plaît", QuestionPresentation, "Je m'appelle Léa. " + lea.Description},
		{"Parle de toi", QuestionPresentation, "Je m'appelle Léa. " + lea.Description},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := c.Classify(tt.message, lea)
			if got == nil {
				t.Fatal("expected a personal question")
			}
			if got.Type != tt.wantType || got.DirectResponse != tt.wantResp {
				t.Errorf("got %s %q, want %s %q", got.Type, got.DirectResponse, tt.wantType, tt.wantResp)
			}
			if !got.UseDirectResponse() {
				t.Error("expected direct response")
			}
		})
	}
}

func TestKeywordClassifierIgnoresOrdinaryMessages(t *testing.T) {
	c := NewKeywordClassifier()
	for _, msg := range []string{"", "Quel est le nombre de places ?", "Je voudrais réserver un vol"} {
		if got := c.Classify(msg, lea); got != nil {
			t.Errorf("Classify(%q) = %+v, want nil", msg, got)
		}
	}
}

func TestPresentationTokenBudget(t *testing.T) {
	got := NewKeywordClassifier().Classify("dis moi qui tu es", lea)
	if got == nil || got.MaxTokens != 80 || got.Temperature != 0.2 {
		t.Errorf("unexpected suggestion budget: %+v", got)
	}
}

func TestCustomKeywordSets(t *testing.T) {
	c := NewKeywordClassifier(KeywordSet{
		Type:       QuestionIdentity,
		Confidence: 0.5,
		Keywords:   []string{"What's your name"},
		Respond:    func(b models.BotInfo) string { return "I'm " + b.Name },
	})
	got := c.Classify("hey, what's your name?", lea)
	if got == nil || got.DirectResponse != "I'm Léa" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if c.Classify("comment tu t'appelles", lea) != nil {
		t.Error("default tables should not be active")
	}
}

func TestSuggestions(t *testing.T) {
	for _, qt := range []QuestionType{QuestionIdentity, QuestionProfession, QuestionCapabilities, QuestionPresentation} {
		s := Suggestions(qt, lea)
		if len(s) != 3 {
			t.Errorf("%s: expected 3 suggestions, got %d", qt, len(s))
		}
	}
	if Suggestions("weather", lea) != nil {
		t.Error("unknown type should have no suggestions")
	}
}

func TestLogMissedQuestion(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"c'est quoi ton blaz", "name"},
		{"tu bosses dans quel job", "profession"},
		{"tu sais aider ?", "capabilities"},
		{"il fait beau", ""},
	}
	for _, tt := range tests {
		if got := LogMissedQuestion(tt.message, 1); got != tt.want {
			t.Errorf("LogMissedQuestion(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestCorrectIdentity(t *testing.T) {
	denylist := []string{"virtual assistant", "assistante virtuelle", "assistant virtuel", "chatgpt", "claude"}
	tests := []string{
		"I am a virtual assistant designed to help you with your travel plans.",
		"Bonjour ! Je suis une assistante virtuelle conçue pour vous aider. Que voulez-vous ?",
		"Je suis ChatGPT. Et en tant qu'assistant virtuel je peux répondre.",
		"I'm an AI assistant. As an AI, I cannot travel.",
	}
	bots := map[string]models.BotInfo{"configured": lea, "default": models.DefaultBotInfo()}
	for botName, bot := range bots {
		for _, in := range tests {
			t.Run(botName+"/"+in, func(t *testing.T) {
				out, changed := CorrectIdentity(in, bot)
				if !changed {
					t.Fatal("expected a correction")
				}
				if !strings.Contains(out, bot.Name) {
					t.Errorf("corrected text lacks bot name: %q", out)
				}
				lower := strings.ToLower(out)
				for _, phrase := range denylist {
					if strings.Contains(lower, phrase) {
						t.Errorf("corrected text still contains %q: %q", phrase, out)
					}
				}
				again, changed := CorrectIdentity(out, bot)
				if changed || again != out {
					t.Errorf("second pass changed %q into %q", out, again)
				}
			})
		}
	}
}

func TestCorrectIdentityReplacesEveryOccurrence(t *testing.T) {
	in := "Je suis une IA. Mais je suis une IA gentille."
	out, _ := CorrectIdentity(in, lea)
	if strings.Count(out, "Je suis Léa.") != 2 {
		t.Errorf("expected two replacements, got %q", out)
	}
}

func TestCorrectIdentityLeavesCleanTextAlone(t *testing.T) {
	in := "Je suis Léa et je vous aide à préparer votre voyage."
	out, changed := CorrectIdentity(in, lea)
	if changed || out != in {
		t.Errorf("unexpected change: %q", out)
	}
}
