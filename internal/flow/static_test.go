package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/BotRouter/internal/models"
)

func TestMessageHandler_Handle(t *testing.T) {
	tests := []struct {
		name    string
		message string
		vars    map[string]string
		want    string
	}{
		{"plain", "Bonjour", nil, "Bonjour"},
		{"substituted", "Merci {prenom} !", map[string]string{"prenom": "Ana"}, "Merci Ana !"},
		{"unknown kept", "Code {code}", nil, "Code {code}"},
		{"empty skipped", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := NewExecutionContext(1, "salut")
			for k, v := range tt.vars {
				ec.SetVariable(k, v)
			}
			node := models.FlowNode{ID: 1, Type: models.NodeTypeMessage, Config: models.MessageConfig{Message: tt.message}}
			if err := (&MessageHandler{}).Handle(context.Background(), node, ec); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := ec.Response(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMessageHandler_ConfigMismatch(t *testing.T) {
	node := models.FlowNode{ID: 1, Type: models.NodeTypeMessage, Config: models.InputConfig{}}
	err := (&MessageHandler{}).Handle(context.Background(), node, NewExecutionContext(1, "x"))
	if !errors.Is(err, models.ErrNodeConfigMismatch) {
		t.Errorf("expected ErrNodeConfigMismatch, got %v", err)
	}
}

func TestHandleInput(t *testing.T) {
	ec := NewExecutionContext(1, "Ana")
	named := models.FlowNode{ID: 1, Type: models.NodeTypeInput, Config: models.InputConfig{Variable: "prenom"}}
	unnamed := models.FlowNode{ID: 2, Type: models.NodeTypeInput, Config: models.InputConfig{}}
	for _, n := range []models.FlowNode{named, unnamed} {
		if err := handleInput(context.Background(), n, ec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if v, _ := ec.Variable("prenom"); v != "Ana" {
		t.Errorf("expected prenom=Ana, got %q", v)
	}
	if v, _ := ec.Variable(models.DefaultInputVariable); v != "Ana" {
		t.Errorf("expected %s=Ana, got %q", models.DefaultInputVariable, v)
	}
}

func TestResponseJoinsParts(t *testing.T) {
	ec := NewExecutionContext(1, "x")
	ec.AddResponse("Un")
	ec.AddResponse("Deux")
	if got := ec.Response(); got != "Un\nDeux" {
		t.Errorf("expected parts joined by newline, got %q", got)
	}
}
