package workspace

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/derive/dataset"
	"github.com/liamcoop/derive/internal/logger"
	"github.com/liamcoop/derive/rules"
	"github.com/liamcoop/derive/transform"
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	// ErrNoResult means no run has completed for the workspace yet
	ErrNoResult = errors.New("no transformation result available")
)

// Workspace pairs one rule set with the records it is applied to and the
// last published result.
type Workspace struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Rules     *rules.RuleSet

	engine *transform.Engine

	applyMu       sync.Mutex // one run at a time
	mu            sync.RWMutex
	records       []dataset.Record
	result        *transform.Result
	resultVersion uint64
}

// Manager keeps every workspace in memory. With a database, workspaces and
// their rules are persisted; records and results are always resident only.
type Manager struct {
	workspaces map[string]*Workspace
	db         *sql.DB
	engine     *transform.Engine
	mu         sync.RWMutex
}

// NewManager creates a manager. db may be nil for in-memory operation.
func NewManager(db *sql.DB, engine *transform.Engine) *Manager {
	return &Manager{
		workspaces: make(map[string]*Workspace),
		db:         db,
		engine:     engine,
	}
}

func (m *Manager) newWorkspace(id, name string, createdAt time.Time) (*Workspace, error) {
	var store rules.RuleStore
	if m.db != nil {
		store = rules.NewPostgresRuleStore(m.db, id)
	} else {
		store = rules.NewInMemoryRuleStore()
	}

	rs, err := rules.NewRuleSet(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule set: %w", err)
	}

	return &Workspace{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
		Rules:     rs,
		engine:    m.engine,
	}, nil
}

// LoadAll loads every workspace and its rules from the database
func (m *Manager) LoadAll() error {
	if m.db == nil {
		return nil
	}

	rows, err := m.db.Query(`SELECT id, name, created_at FROM workspaces ORDER BY created_at ASC`)
	if err != nil {
		return fmt.Errorf("failed to fetch workspaces: %w", err)
	}
	defer rows.Close()

	loaded := make(map[string]*Workspace)
	for rows.Next() {
		var (
			id, name  string
			createdAt time.Time
		)
		if err := rows.Scan(&id, &name, &createdAt); err != nil {
			return fmt.Errorf("failed to scan workspace row: %w", err)
		}

		ws, err := m.newWorkspace(id, name, createdAt)
		if err != nil {
			return fmt.Errorf("failed to initialize workspace %s: %w", id, err)
		}
		loaded[id] = ws
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating workspace rows: %w", err)
	}

	m.mu.Lock()
	for id, ws := range loaded {
		m.workspaces[id] = ws
	}
	m.mu.Unlock()

	logger.Info("workspaces loaded", "count", len(loaded))
	return nil
}

// CreateWorkspace registers a new, empty workspace
func (m *Manager) CreateWorkspace(name string) (*Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("workspace name cannot be empty")
	}

	id := uuid.New().String()
	createdAt := time.Now()
	if m.db != nil {
		err := m.db.QueryRow(`
			INSERT INTO workspaces (name) VALUES ($1) RETURNING id, created_at
		`, name).Scan(&id, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create workspace: %w", err)
		}
	}

	ws, err := m.newWorkspace(id, name, createdAt)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.workspaces[id] = ws
	m.mu.Unlock()

	logger.Info("workspace created", "workspace_id", id, "name", name)
	return ws, nil
}

// Get retrieves a workspace
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, ok := m.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}
	return ws, nil
}

// List returns all workspaces, oldest first
func (m *Manager) List() []*Workspace {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes a workspace. Its persisted rules go with it.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workspaces[id]; !ok {
		return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}

	if m.db != nil {
		if _, err := m.db.Exec(`DELETE FROM workspaces WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete workspace: %w", err)
		}
	}

	delete(m.workspaces, id)
	return nil
}

// SetRecords replaces the workspace's input records. The previous result
// stays published until the next Apply.
func (w *Workspace) SetRecords(records []dataset.Record) {
	copied := dataset.CloneAll(records)

	w.mu.Lock()
	w.records = copied
	w.mu.Unlock()
}

// RecordCount returns the number of input records.
func (w *Workspace) RecordCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.records)
}

// Apply runs the current rule list against the current records and publishes
// the result. Runs are serialized. When there are no records the previous
// result stays in place and transform.ErrNoRecords is returned.
func (w *Workspace) Apply() (*transform.Result, error) {
	w.applyMu.Lock()
	defer w.applyMu.Unlock()

	version := w.Rules.Version()
	list, err := w.Rules.Rules()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	w.mu.RLock()
	records := w.records
	w.mu.RUnlock()

	res, err := w.engine.Apply(records, list)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.result = res
	w.resultVersion = version
	w.mu.Unlock()

	return res, nil
}

// Result returns the last published result.
func (w *Workspace) Result() (*transform.Result, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.result == nil {
		return nil, ErrNoResult
	}
	return w.result, nil
}

// Stale reports whether the rules changed since the published result was computed.
func (w *Workspace) Stale() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.result != nil && w.resultVersion != w.Rules.Version()
}

// Preview returns the first n records of the published result.
func (w *Workspace) Preview(n int, visibility map[string]bool) ([]dataset.Record, error) {
	res, err := w.Result()
	if err != nil {
		return nil, err
	}
	return res.Preview(n, visibility), nil
}

// ExportRules serializes the ordered rule list as a JSON array.
func (w *Workspace) ExportRules() ([]byte, error) {
	list, err := w.Rules.Rules()
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*rules.Rule{}
	}
	return json.MarshalIndent(list, "", "  ")
}

// ImportRules replaces the rule list with a JSON array of rule definitions.
// Nothing is recomputed.
func (w *Workspace) ImportRules(data []byte) (int, error) {
	list, err := rules.DecodeDefinitions(data)
	if err != nil {
		return 0, err
	}
	if err := w.Rules.Replace(list); err != nil {
		return 0, err
	}
	logger.Info("rules imported", "workspace_id", w.ID, "count", len(list))
	return len(list), nil
}
