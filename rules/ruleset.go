package rules

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RuleSet manages one ordered rule list on top of a RuleStore.
// Mutations never trigger recomputation; applying the rules is always a
// separate, explicit call on the transform engine.
type RuleSet struct {
	store RuleStore
	cache RulesCache
	mu    sync.Mutex // serializes read-modify-write mutations
}

// NewRuleSet creates a rule set and warms its cache from the store
func NewRuleSet(store RuleStore) (*RuleSet, error) {
	rs := &RuleSet{
		store: store,
		cache: NewInMemoryRulesCache(DefaultCacheConfig()),
	}

	list, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	rs.cache.Set(list)

	return rs, nil
}

// Rules returns the ordered rule list, served from cache when possible
func (rs *RuleSet) Rules() ([]*Rule, error) {
	if list, ok := rs.cache.Get(); ok {
		return list, nil
	}

	list, err := rs.store.List()
	if err != nil {
		return nil, err
	}
	rs.cache.Set(list)
	return list, nil
}

// Enabled returns the enabled rules in order
func (rs *RuleSet) Enabled() ([]*Rule, error) {
	list, err := rs.Rules()
	if err != nil {
		return nil, err
	}
	out := make([]*Rule, 0, len(list))
	for _, r := range list {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

// Version identifies the current generation of the rule list
func (rs *RuleSet) Version() uint64 {
	return rs.cache.Version()
}

// Get returns a copy of one rule
func (rs *RuleSet) Get(id string) (*Rule, error) {
	return rs.store.Get(id)
}

// Add validates and appends a rule. An empty ID is replaced by a new UUID.
func (rs *RuleSet) Add(r *Rule) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if err := Validate(r); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if _, err := rs.store.Get(r.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, r.ID)
	}

	if err := rs.store.Add(r); err != nil {
		return err
	}

	rs.cache.Invalidate()
	return nil
}

// Update replaces a rule's definition. The ID and position stay the same.
func (rs *RuleSet) Update(r *Rule) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := Validate(r); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if err := rs.store.Update(r); err != nil {
		return err
	}

	rs.cache.Invalidate()
	return nil
}

// Delete removes a rule
func (rs *RuleSet) Delete(id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.store.Delete(id); err != nil {
		return err
	}

	rs.cache.Invalidate()
	return nil
}

// Move reorders a rule to a zero-based position
func (rs *RuleSet) Move(id string, position int) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.store.Move(id, position); err != nil {
		return err
	}

	rs.cache.Invalidate()
	return nil
}

// SetEnabled toggles whether a rule takes part in the next run
func (rs *RuleSet) SetEnabled(id string, enabled bool) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	r, err := rs.store.Get(id)
	if err != nil {
		return err
	}
	if r.Enabled == enabled {
		return nil
	}
	r.Enabled = enabled
	if err := rs.store.Update(r); err != nil {
		return err
	}

	rs.cache.Invalidate()
	return nil
}

// Replace swaps the whole list after shape validation, e.g. on import
func (rs *RuleSet) Replace(list []*Rule) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := ValidateDefinitions(list); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if err := rs.store.Replace(list); err != nil {
		return err
	}

	rs.cache.Invalidate()
	return nil
}
