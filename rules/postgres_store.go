package rules

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
// Rules are ordered by an explicit position column scoped to a workspace.
type PostgresRuleStore struct {
	db          *sql.DB
	workspaceID string
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore for a specific workspace
func NewPostgresRuleStore(db *sql.DB, workspaceID string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:          db,
		workspaceID: workspaceID,
	}
}

const selectRule = `
	SELECT id, rule_type, output_field, comment, enabled, params, created_at, updated_at
	FROM rules
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		r      Rule
		params []byte
	)
	if err := row.Scan(&r.ID, &r.Type, &r.OutputField, &r.Comment, &r.Enabled,
		&params, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &r.Params); err != nil {
		return nil, fmt.Errorf("invalid parameters for rule %s: %w", r.ID, err)
	}
	return &r, nil
}

// Add appends a rule after the current last position
func (s *PostgresRuleStore) Add(rule *Rule) error {
	params, err := json.Marshal(rule.Params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1 AND workspace_id = $2)
	`, rule.ID, s.workspaceID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = tx.Exec(`
		INSERT INTO rules (workspace_id, id, position, rule_type, output_field, comment, enabled, params, created_at, updated_at)
		SELECT $1, $2, COALESCE(MAX(position) + 1, 0), $3, $4, $5, $6, $7, $8, $9
		FROM rules WHERE workspace_id = $1
	`, s.workspaceID, rule.ID, rule.Type, rule.OutputField, rule.Comment, rule.Enabled,
		params, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return tx.Commit()
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	rule, err := scanRule(s.db.QueryRow(selectRule+`WHERE id = $1 AND workspace_id = $2`, id, s.workspaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List returns all rules of the workspace in execution order
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	rows, err := s.db.Query(selectRule+`WHERE workspace_id = $1 ORDER BY position ASC`, s.workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule in place
func (s *PostgresRuleStore) Update(rule *Rule) error {
	params, err := json.Marshal(rule.Params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}

	rule.UpdatedAt = time.Now()

	err = s.db.QueryRow(`
		UPDATE rules
		SET rule_type = $1, output_field = $2, comment = $3, enabled = $4, params = $5, updated_at = $6
		WHERE id = $7 AND workspace_id = $8
		RETURNING created_at
	`, rule.Type, rule.OutputField, rule.Comment, rule.Enabled, params, rule.UpdatedAt,
		rule.ID, s.workspaceID).Scan(&rule.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return nil
}

// Delete removes a rule and closes the gap in positions
func (s *PostgresRuleStore) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRow(`
		DELETE FROM rules
		WHERE id = $1 AND workspace_id = $2
		RETURNING position
	`, id, s.workspaceID).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE rules SET position = position - 1
		WHERE workspace_id = $1 AND position > $2
	`, s.workspaceID, position); err != nil {
		return fmt.Errorf("failed to reorder rules: %w", err)
	}

	return tx.Commit()
}

// Move relocates a rule. Positions past the end are clamped to the last slot.
func (s *PostgresRuleStore) Move(id string, position int) error {
	if position < 0 {
		return fmt.Errorf("position %d cannot be negative", position)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current, count int
	err = tx.QueryRow(`
		SELECT position, (SELECT COUNT(*) FROM rules WHERE workspace_id = $2)
		FROM rules
		WHERE id = $1 AND workspace_id = $2
		FOR UPDATE
	`, id, s.workspaceID).Scan(&current, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to find rule: %w", err)
	}

	if position >= count {
		position = count - 1
	}
	if position == current {
		return tx.Commit()
	}

	if position < current {
		_, err = tx.Exec(`
			UPDATE rules SET position = position + 1
			WHERE workspace_id = $1 AND position >= $2 AND position < $3
		`, s.workspaceID, position, current)
	} else {
		_, err = tx.Exec(`
			UPDATE rules SET position = position - 1
			WHERE workspace_id = $1 AND position > $2 AND position <= $3
		`, s.workspaceID, current, position)
	}
	if err != nil {
		return fmt.Errorf("failed to shift rules: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE rules SET position = $1, updated_at = NOW()
		WHERE id = $2 AND workspace_id = $3
	`, position, id, s.workspaceID); err != nil {
		return fmt.Errorf("failed to move rule: %w", err)
	}

	return tx.Commit()
}

// Replace swaps the workspace's rule list in one transaction
func (s *PostgresRuleStore) Replace(list []*Rule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM rules WHERE workspace_id = $1`, s.workspaceID); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	now := time.Now()
	for i, r := range list {
		params, err := json.Marshal(r.Params)
		if err != nil {
			return fmt.Errorf("failed to encode parameters for rule %s: %w", r.ID, err)
		}
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := tx.Exec(`
			INSERT INTO rules (workspace_id, id, position, rule_type, output_field, comment, enabled, params, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, s.workspaceID, r.ID, i, r.Type, r.OutputField, r.Comment, r.Enabled,
			params, created, now); err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}
