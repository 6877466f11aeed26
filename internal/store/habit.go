package store

import (
	"database/sql"
	"fmt"

	"github.com/mjkeeling/ember/internal/model"
	"github.com/mjkeeling/ember/internal/period"
)

type HabitStore struct {
	db *sql.DB
}

func NewHabitStore(db *sql.DB) *HabitStore {
	return &HabitStore{db: db}
}

func scanHabit(scanner interface{ Scan(...any) error }) (*model.Habit, error) {
	var h model.Habit
	var cadence string

	err := scanner.Scan(&h.ID, &h.Name, &h.Username, &cadence, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c, err := period.ParseCadence(cadence)
	if err != nil {
		return nil, fmt.Errorf("habit %d: %w", h.ID, err)
	}
	h.Cadence = c
	return &h, nil
}

const habitCols = `id, name, username, habit_type, created_at, updated_at`

func (s *HabitStore) Create(name, username string, cadence period.Cadence) (*model.Habit, error) {
	result, err := s.db.Exec(
		`INSERT INTO habits (name, username, habit_type) VALUES (?, ?, ?)`,
		name, username, string(cadence),
	)
	if err != nil {
		return nil, fmt.Errorf("insert habit: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+habitCols+` FROM habits WHERE id = ?`, id)
	return scanHabit(row)
}

func (s *HabitStore) GetByName(name, username string) (*model.Habit, error) {
	row := s.db.QueryRow(
		`SELECT `+habitCols+` FROM habits WHERE name = ? AND username = ?`,
		name, username,
	)
	h, err := scanHabit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return h, nil
}

func (s *HabitStore) List(username string) ([]model.Habit, error) {
	rows, err := s.db.Query(
		`SELECT `+habitCols+` FROM habits WHERE username = ? ORDER BY created_at ASC, name ASC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var habits []model.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

// Delete removes a habit; its completions go with it via cascade.
func (s *HabitStore) Delete(name, username string) error {
	_, err := s.db.Exec(`DELETE FROM habits WHERE name = ? AND username = ?`, name, username)
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return nil
}

// --- Completion methods ---

// MarkComplete records a completion for the given period. Marking an already
// completed period is a no-op; the unique constraint is the dedup mechanism.
func (s *HabitStore) MarkComplete(periodKey, habitName, username string) error {
	_, err := s.db.Exec(
		`INSERT INTO completions (period_key, habit_name, username) VALUES (?, ?, ?)
		 ON CONFLICT (period_key, habit_name, username) DO NOTHING`,
		periodKey, habitName, username,
	)
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}
	return nil
}

// UnmarkComplete removes a completion. Removing a missing one is a no-op.
func (s *HabitStore) UnmarkComplete(periodKey, habitName, username string) error {
	_, err := s.db.Exec(
		`DELETE FROM completions WHERE period_key = ? AND habit_name = ? AND username = ?`,
		periodKey, habitName, username,
	)
	if err != nil {
		return fmt.Errorf("delete completion: %w", err)
	}
	return nil
}

// CompletedKeys returns the set of period keys the habit was completed in,
// shaped for the streak walk.
func (s *HabitStore) CompletedKeys(habitName, username string) (map[string]struct{}, error) {
	rows, err := s.db.Query(
		`SELECT period_key FROM completions WHERE habit_name = ? AND username = ?`,
		habitName, username,
	)
	if err != nil {
		return nil, fmt.Errorf("list completion keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan completion key: %w", err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// CompletedKeysForUser returns completion keys for all of a user's habits in
// one query, keyed by habit name. Saves a per-habit round trip on the dashboard.
func (s *HabitStore) CompletedKeysForUser(username string) (map[string]map[string]struct{}, error) {
	rows, err := s.db.Query(
		`SELECT habit_name, period_key FROM completions WHERE username = ?`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("list user completion keys: %w", err)
	}
	defer rows.Close()

	byHabit := make(map[string]map[string]struct{})
	for rows.Next() {
		var habit, key string
		if err := rows.Scan(&habit, &key); err != nil {
			return nil, fmt.Errorf("scan user completion key: %w", err)
		}
		if byHabit[habit] == nil {
			byHabit[habit] = make(map[string]struct{})
		}
		byHabit[habit][key] = struct{}{}
	}
	return byHabit, rows.Err()
}
