package rules

import (
	"fmt"
	"sync"
	"time"
)

// RuleStore persists an ordered rule list
type RuleStore interface {
	// Add appends a rule at the end of the list
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// List all rules in execution order
	List() ([]*Rule, error)

	// Update an existing rule in place, keeping its position
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error

	// Move a rule to a zero-based position, shifting the others
	Move(id string, position int) error

	// Replace the whole list, e.g. on import
	Replace(rules []*Rule) error
}

// InMemoryRuleStore implements RuleStore using an ordered slice
// Thread-safe with RWMutex
type InMemoryRuleStore struct {
	rules []*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{}
}

func (s *InMemoryRuleStore) indexOf(id string) int {
	for i, r := range s.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Add appends a new rule
// Enforces unique rule IDs and sets CreatedAt and UpdatedAt timestamps
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(rule.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules = append(s.rules, rule.Clone())
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return s.rules[i].Clone(), nil
}

// List returns copies of all rules in order
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Clone()
	}
	return out, nil
}

// Update replaces an existing rule, preserving CreatedAt and position
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(rule.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
	}

	rule.CreatedAt = s.rules[i].CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[i] = rule.Clone()
	return nil
}

// Delete removes a rule from the list
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	return nil
}

// Move relocates a rule. Positions past the end are clamped to the last slot.
func (s *InMemoryRuleStore) Move(id string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if position < 0 {
		return fmt.Errorf("position %d cannot be negative", position)
	}
	if position >= len(s.rules) {
		position = len(s.rules) - 1
	}

	r := s.rules[i]
	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	s.rules = append(s.rules[:position], append([]*Rule{r}, s.rules[position:]...)...)
	return nil
}

// Replace swaps in a new rule list
func (s *InMemoryRuleStore) Replace(rules []*Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	next := make([]*Rule, len(rules))
	for i, r := range rules {
		c := r.Clone()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		next[i] = c
	}
	s.rules = next
	return nil
}
