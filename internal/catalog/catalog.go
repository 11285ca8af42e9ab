package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrOutOfRange is returned when a prompt ordinal is outside [1, Count()].
var ErrOutOfRange = errors.New("prompt number out of range")

// defaultPrompts are the sentences used when no prompts file is configured.
var defaultPrompts = []string{
	"She sells fresh apples every Saturday morning at the market.",
	"The teacher checked the students' homework carefully after class ended.",
	"I usually read English books before going to sleep at night.",
	"My brother plays football with his friends after school every afternoon.",
	"They are planning to visit the museum next weekend together.",
	"Please close the door quietly when you leave the room please.",
	"The little boy is learning how to ride a bicycle alone.",
	"We discussed the problem and found a simple solution together.",
	"My favorite movie was released last year in cinemas worldwide.",
	"She smiled happily when she heard the good news yesterday.",
}

// Catalog is an immutable, ordered list of reading prompts. Content and
// ordering are fixed at construction.
type Catalog struct {
	prompts []string
}

// New creates a catalog from the given prompts.
func New(prompts []string) (*Catalog, error) {
	if len(prompts) == 0 {
		return nil, errors.New("catalog must contain at least one prompt")
	}
	c := &Catalog{prompts: make([]string, len(prompts))}
	copy(c.prompts, prompts)
	return c, nil
}

// Default returns the built-in prompt catalog.
func Default() *Catalog {
	c, _ := New(defaultPrompts)
	return c
}

// LoadFile reads a catalog from a JSON file containing an array of strings.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var prompts []string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c, err := New(prompts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return c, nil
}

// Count returns the fixed catalog size.
func (c *Catalog) Count() int {
	return len(c.prompts)
}

// At returns the prompt text for the 1-based ordinal n.
func (c *Catalog) At(n int) (string, error) {
	if n < 1 || n > len(c.prompts) {
		return "", fmt.Errorf("%w: %d (catalog has %d prompts)", ErrOutOfRange, n, len(c.prompts))
	}
	return c.prompts[n-1], nil
}
