package gating

import (
	"testing"

	"github.com/shaiso/Gatekeeper/internal/domain"
)

func TestFlagRef_Eval(t *testing.T) {
	flags := domain.ClassificationFlags{"SOURCE_CHANGED": true, "TESTING_CHANGED": false}

	if !FlagRef("SOURCE_CHANGED").Eval(flags) {
		t.Error("SOURCE_CHANGED should be true")
	}
	if FlagRef("TESTING_CHANGED").Eval(flags) {
		t.Error("TESTING_CHANGED should be false")
	}
	// Неизвестный флаг — false, не ошибка
	if FlagRef("UNKNOWN").Eval(flags) {
		t.Error("unknown flag should evaluate to false")
	}
}

func TestAnd_Eval(t *testing.T) {
	flags := domain.ClassificationFlags{"A": true, "B": false}

	tests := []struct {
		name string
		pred And
		want bool
	}{
		{"both true", And{FlagRef("A"), True{}}, true},
		{"one false", And{FlagRef("A"), FlagRef("B")}, false},
		{"empty", And{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred.Eval(flags); got != tt.want {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOr_Eval(t *testing.T) {
	flags := domain.ClassificationFlags{"A": true, "B": false}

	tests := []struct {
		name string
		pred Or
		want bool
	}{
		{"one true", Or{FlagRef("B"), FlagRef("A")}, true},
		{"all false", Or{FlagRef("B")}, false},
		{"empty", Or{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred.Eval(flags); got != tt.want {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNot_Eval(t *testing.T) {
	flags := domain.ClassificationFlags{"A": true}

	if (Not{Sub: FlagRef("A")}).Eval(flags) {
		t.Error("!A should be false")
	}
	if !(Not{Sub: FlagRef("B")}).Eval(flags) {
		t.Error("!B should be true")
	}
}

func TestPredicate_Refs(t *testing.T) {
	pred := And{
		FlagRef("B"),
		Or{FlagRef("A"), Not{Sub: FlagRef("B")}},
		True{},
	}

	refs := pred.Refs()
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d: %v", len(refs), refs)
	}
	// Refs отсортированы и уникальны
	if refs[0] != "A" || refs[1] != "B" {
		t.Errorf("expected [A B], got %v", refs)
	}
}

func TestGuardYAML_ToPredicate(t *testing.T) {
	g := guardYAML{
		Any: []guardYAML{
			{Flag: "SOURCE_CHANGED"},
			{Not: &guardYAML{Flag: "DOCS_CHANGED"}},
		},
	}

	pred, err := g.toPredicate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flags := domain.ClassificationFlags{"DOCS_CHANGED": true}
	if pred.Eval(flags) {
		t.Error("guard should be false: SOURCE unset, DOCS set")
	}

	flags = domain.ClassificationFlags{}
	if !pred.Eval(flags) {
		t.Error("guard should be true: !DOCS_CHANGED holds")
	}
}

func TestGuardYAML_ToPredicate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		g    guardYAML
	}{
		{"empty", guardYAML{}},
		{"two variants", guardYAML{Flag: "A", Not: &guardYAML{Flag: "B"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.g.toPredicate(); err == nil {
				t.Error("expected error for invalid guard")
			}
		})
	}
}
