package production

import (
	"math"
	"time"
)

// applyInputModifiers applies the cost modifier to consumed inputs, rounding
// up with a minimum of one item. Tools are not affected.
func applyInputModifiers(inputs []Input, modifier float64) []Input {
	if len(inputs) == 0 {
		return nil
	}
	result := make([]Input, len(inputs))
	for i, in := range inputs {
		result[i] = in
		if in.Tool {
			continue
		}
		result[i].Quantity = max(1, int(math.Ceil(float64(in.Quantity)*modifier)))
	}
	return result
}

// applyOutputModifiers applies the yield modifier to outputs, rounding down.
func applyOutputModifiers(outputs []Output, modifier float64) []Output {
	if len(outputs) == 0 {
		return nil
	}
	result := make([]Output, len(outputs))
	for i, out := range outputs {
		result[i] = out
		result[i].Quantity = max(0, int(math.Floor(float64(out.Quantity)*modifier)))
	}
	return result
}

// applyDurationModifier applies the time speed modifier to a duration.
func applyDurationModifier(d time.Duration, modifier float64) time.Duration {
	if d <= 0 {
		return 0
	}
	return max(0, time.Duration(math.Round(float64(d)*modifier)))
}

// DefaultModifiers returns identity modifiers (no effect).
func DefaultModifiers() Modifiers {
	return Modifiers{
		InputCost:   1.0,
		OutputYield: 1.0,
		TimeSpeed:   1.0,
	}
}

// StaticModifiers applies fixed modifiers per storage, regardless of recipe.
type StaticModifiers map[string]Modifiers

// GetModifiers implements ModifierSource.
func (s StaticModifiers) GetModifiers(storageID string, _ RecipeID) Modifiers {
	if m, ok := s[storageID]; ok {
		return m
	}
	return DefaultModifiers()
}
