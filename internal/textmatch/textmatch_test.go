package textmatch

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"Bonjour !", "bonjour"},
		{"Quelles sont vos heures d'ouverture ?", "quelles sont vos heures d ouverture"},
		{"  Évaluer   l'été\tà Noël ", "evaluer l ete a noel"},
		{"prix: 12€", "prix 12"},
		{"ŒUVRE", "uvre"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Explique-moi la photosynthèse",
		"ÇA VA ? très bien, merci !!",
		"日本語 and ascii",
		"tab\tnew\nline",
		"   ",
		"Ünïcödé ßtraße",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestScoreEmptyTriggers(t *testing.T) {
	if got := Score("bonjour", nil); got != 0 {
		t.Errorf("Score with no triggers = %v, want 0", got)
	}
}

func TestScoreBounds(t *testing.T) {
	cases := []struct {
		msg      string
		triggers []string
	}{
		{"bonjour bonjour", []string{"bonjour", "bonjour", "bonjour"}},
		{"", []string{"x"}},
		{"abc", []string{"", "!!!"}},
		{"livraison rapide gratuite", []string{"livraison", "rapide livraison", "frais de port"}},
	}
	for _, c := range cases {
		got := Score(c.msg, c.triggers)
		if got < 0 || got > 1 {
			t.Errorf("Score(%q, %q) = %v out of bounds", c.msg, c.triggers, got)
		}
	}
}

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		triggers []string
		want     float64
	}{
		{"exact phrase", "quels sont vos horaires", []string{"horaires"}, 1.0},
		{"accent insensitive", "Où est la gare ?", []string{"ou est"}, 1.0},
		{"full word overlap", "Quelles sont vos heures d'ouverture ?", []string{"heures ouverture"}, 0.7},
		{"half word overlap", "quel prix", []string{"prix livraison"}, 0.35},
		{"mean across triggers", "Quelles sont vos heures d'ouverture ?", []string{"horaires", "heures ouverture"}, 0.35},
		{"no overlap", "bonjour", []string{"tarifs"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.msg, tt.triggers); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainsPhrase(t *testing.T) {
	if !ContainsPhrase("comment tu t appelles", "t appelles") {
		t.Error("expected phrase match")
	}
	if ContainsPhrase("le nombre", "nom") {
		t.Error("partial word must not match")
	}
	if ContainsPhrase("abc", "") {
		t.Error("empty phrase must not match")
	}
}
