package production

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// RecipeRegistry stores recipes indexed by category and output item.
type RecipeRegistry struct {
	mu         sync.RWMutex
	recipes    map[RecipeID]*Recipe
	byCategory map[string][]RecipeID
	byOutput   map[string][]RecipeID
}

// NewRecipeRegistry creates an empty recipe registry.
func NewRecipeRegistry() *RecipeRegistry {
	return &RecipeRegistry{
		recipes:    make(map[RecipeID]*Recipe),
		byCategory: make(map[string][]RecipeID),
		byOutput:   make(map[string][]RecipeID),
	}
}

// Register adds or replaces a recipe. Output probabilities of zero default
// to 1.0.
func (r *RecipeRegistry) Register(recipe *Recipe) error {
	if recipe == nil {
		return errors.New("recipe cannot be nil")
	}
	if recipe.ID == "" {
		return errors.New("recipe ID cannot be empty")
	}
	for i, in := range recipe.Inputs {
		if in.Item == nil {
			return fmt.Errorf("input %d: item cannot be empty", i)
		}
		if in.Quantity <= 0 {
			return fmt.Errorf("input %d: quantity must be positive", i)
		}
	}
	for i := range recipe.Outputs {
		out := &recipe.Outputs[i]
		if out.Item == nil {
			return fmt.Errorf("output %d: item cannot be empty", i)
		}
		if out.Quantity < 0 {
			return fmt.Errorf("output %d: quantity cannot be negative", i)
		}
		if out.Probability < 0.0 || out.Probability > 1.0 {
			return fmt.Errorf("output %d: probability must be between 0.0 and 1.0", i)
		}
		if out.Probability == 0.0 {
			out.Probability = 1.0
		}
	}
	if recipe.Duration < 0 {
		return errors.New("duration cannot be negative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.recipes[recipe.ID]; ok {
		r.removeIndices(existing)
	}
	r.recipes[recipe.ID] = recipe
	if recipe.Category != "" {
		r.byCategory[recipe.Category] = append(r.byCategory[recipe.Category], recipe.ID)
	}
	seen := make(map[string]bool)
	for _, out := range recipe.Outputs {
		if !seen[out.Item.Key] {
			seen[out.Item.Key] = true
			r.byOutput[out.Item.Key] = append(r.byOutput[out.Item.Key], recipe.ID)
		}
	}
	return nil
}

// removeIndices removes a recipe from secondary indices (caller must hold lock).
func (r *RecipeRegistry) removeIndices(recipe *Recipe) {
	if recipe.Category != "" {
		r.byCategory[recipe.Category] = removeRecipeID(r.byCategory[recipe.Category], recipe.ID)
		if len(r.byCategory[recipe.Category]) == 0 {
			delete(r.byCategory, recipe.Category)
		}
	}
	for _, out := range recipe.Outputs {
		r.byOutput[out.Item.Key] = removeRecipeID(r.byOutput[out.Item.Key], recipe.ID)
		if len(r.byOutput[out.Item.Key]) == 0 {
			delete(r.byOutput, out.Item.Key)
		}
	}
}

func removeRecipeID(ids []RecipeID, target RecipeID) []RecipeID {
	result := make([]RecipeID, 0, len(ids))
	for _, id := range ids {
		if id != target {
			result = append(result, id)
		}
	}
	return result
}

// Lookup retrieves a recipe by ID. Returns nil if not found.
func (r *RecipeRegistry) Lookup(id RecipeID) *Recipe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recipes[id]
}

// GetByCategory returns all recipe IDs in a category.
func (r *RecipeRegistry) GetByCategory(category string) []RecipeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]RecipeID(nil), r.byCategory[category]...)
}

// GetByOutput returns all recipe IDs that produce the item with the given key.
func (r *RecipeRegistry) GetByOutput(itemKey string) []RecipeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]RecipeID(nil), r.byOutput[itemKey]...)
}

// GetAll returns all recipes sorted by ID.
func (r *RecipeRegistry) GetAll() []*Recipe {
	r.mu.RLock()
	result := make([]*Recipe, 0, len(r.recipes))
	for _, recipe := range r.recipes {
		result = append(result, recipe)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of recipes in the registry.
func (r *RecipeRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.recipes)
}
