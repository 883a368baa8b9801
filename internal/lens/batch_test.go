package lens

import (
	"errors"
	"testing"

	"github.com/cadentj/interp-workbench/internal/models"
)

func completion(name, model, prompt string, tokens ...models.Token) models.TargetedCompletion {
	return models.TargetedCompletion{
		Completion: models.Completion{ID: name + "-id", Prompt: prompt},
		Name:       name,
		Model:      model,
		Tokens:     tokens,
	}
}

func TestGroupByModel(t *testing.T) {
	grouped, err := Group([]models.TargetedCompletion{
		completion("a", "gpt2", "the cat sat", models.Token{Idx: 0, TargetID: 7}),
		completion("b", "pythia", "hello world", models.Token{Idx: 1, TargetID: 3}),
		completion("c", "gpt2", "one two three", models.Token{Idx: 2, TargetID: 9}),
	})
	if err != nil {
		t.Fatalf("Group failed: %v", err)
	}

	if len(grouped) != 2 {
		t.Fatalf("Expected 2 model groups, got %d", len(grouped))
	}
	if len(grouped["gpt2"]) != 2 {
		t.Errorf("Expected 2 sub-requests for gpt2, got %d", len(grouped["gpt2"]))
	}
	if len(grouped["pythia"]) != 1 {
		t.Errorf("Expected 1 sub-request for pythia, got %d", len(grouped["pythia"]))
	}

	// Insertion order within a group must follow input order
	if grouped["gpt2"][0].Name != "a" || grouped["gpt2"][1].Name != "c" {
		t.Errorf("Group order not preserved: %q, %q", grouped["gpt2"][0].Name, grouped["gpt2"][1].Name)
	}
}

func TestGroupOneSubRequestPerItem(t *testing.T) {
	input := []models.TargetedCompletion{
		completion("a", "gpt2", "p1", models.Token{Idx: 0, TargetID: 1}, models.Token{Idx: 1, TargetID: 2}),
		completion("b", "gpt2", "p2"),
		completion("c", "pythia", "p3", models.Token{Idx: 0, TargetID: models.NoTarget}),
	}
	grouped, err := Group(input)
	if err != nil {
		t.Fatalf("Group failed: %v", err)
	}

	total := 0
	for _, subs := range grouped {
		total += len(subs)
	}
	if total != len(input) {
		t.Errorf("Expected %d sub-requests, got %d", len(input), total)
	}
}

func TestGroupStripsSentinelTargets(t *testing.T) {
	grouped, err := Group([]models.TargetedCompletion{
		completion("a", "gpt2", "the cat",
			models.Token{Idx: 0, TargetID: models.NoTarget},
			models.Token{Idx: 1, TargetID: 42},
			models.Token{Idx: 2, TargetID: models.NoTarget},
		),
	})
	if err != nil {
		t.Fatalf("Group failed: %v", err)
	}

	spec := grouped["gpt2"][0].Spec
	if len(spec.Positions) != 1 || spec.Positions[0] != 1 {
		t.Errorf("Expected positions [1], got %v", spec.Positions)
	}
	if len(spec.TargetIDs) != 1 || spec.TargetIDs[0] != 42 {
		t.Errorf("Expected target ids [42], got %v", spec.TargetIDs)
	}
}

func TestGroupKeepsZeroTargetItems(t *testing.T) {
	grouped, err := Group([]models.TargetedCompletion{
		completion("empty", "gpt2", "prompt",
			models.Token{Idx: 0, TargetID: models.NoTarget},
		),
	})
	if err != nil {
		t.Fatalf("Group failed: %v", err)
	}

	subs := grouped["gpt2"]
	if len(subs) != 1 {
		t.Fatalf("Zero-target item dropped: %d sub-requests", len(subs))
	}
	if len(subs[0].Spec.Positions) != 0 {
		t.Errorf("Expected empty positions, got %v", subs[0].Spec.Positions)
	}
}

func TestGroupRejectsMalformedItems(t *testing.T) {
	cases := []struct {
		name  string
		items []models.TargetedCompletion
	}{
		{"missing model", []models.TargetedCompletion{
			completion("a", "", "p", models.Token{Idx: 0, TargetID: 1}),
		}},
		{"negative position", []models.TargetedCompletion{
			completion("a", "gpt2", "p", models.Token{Idx: -2, TargetID: 1}),
		}},
		{"negative non-sentinel target", []models.TargetedCompletion{
			completion("a", "gpt2", "p", models.Token{Idx: 0, TargetID: -5}),
		}},
	}

	for _, tc := range cases {
		_, err := Group(tc.items)
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("%s: expected ValidationError, got %T", tc.name, err)
		}
	}
}
