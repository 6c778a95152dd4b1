package production

import (
	"testing"
	"time"
)

func TestRecipeRegistryIndices(t *testing.T) {
	registry := NewRecipeRegistry()
	recipe := &Recipe{
		ID:       "planks",
		Category: "sawmill",
		Inputs:   []Input{{Item: wood, Quantity: 2}},
		Outputs:  []Output{{Item: planks, Quantity: 1}, {Item: bark, Quantity: 1, Probability: 0.5}},
		Duration: time.Second,
	}
	if err := registry.Register(recipe); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if recipe.Outputs[0].Probability != 1.0 {
		t.Errorf("Expected default probability 1.0, got %f", recipe.Outputs[0].Probability)
	}
	if ids := registry.GetByCategory("sawmill"); len(ids) != 1 || ids[0] != "planks" {
		t.Errorf("Unexpected category index %v", ids)
	}
	if ids := registry.GetByOutput("bark"); len(ids) != 1 {
		t.Errorf("Unexpected output index %v", ids)
	}

	// re-registering moves the recipe between categories
	if err := registry.Register(&Recipe{ID: "planks", Category: "workshop", Outputs: []Output{{Item: planks, Quantity: 1}}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ids := registry.GetByCategory("sawmill"); len(ids) != 0 {
		t.Errorf("Stale category index %v", ids)
	}
	if ids := registry.GetByOutput("bark"); len(ids) != 0 {
		t.Errorf("Stale output index %v", ids)
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 recipe, got %d", registry.Count())
	}
}

func TestRecipeRegistryValidation(t *testing.T) {
	tests := []struct {
		name   string
		recipe *Recipe
	}{
		{"nil", nil},
		{"empty id", &Recipe{}},
		{"nil input item", &Recipe{ID: "x", Inputs: []Input{{Quantity: 1}}}},
		{"zero input", &Recipe{ID: "x", Inputs: []Input{{Item: wood}}}},
		{"negative output", &Recipe{ID: "x", Outputs: []Output{{Item: wood, Quantity: -1}}}},
		{"bad probability", &Recipe{ID: "x", Outputs: []Output{{Item: wood, Quantity: 1, Probability: 2}}}},
		{"negative duration", &Recipe{ID: "x", Duration: -time.Second}},
	}
	registry := NewRecipeRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := registry.Register(tt.recipe); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
