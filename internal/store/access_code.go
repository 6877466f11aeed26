package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mjkeeling/ember/internal/model"
)

// ErrCodeUnavailable means the access code does not exist or was already
// claimed. The two cases are deliberately indistinguishable to callers.
var ErrCodeUnavailable = errors.New("access code invalid or already used")

type AccessCodeStore struct {
	db *sql.DB
}

func NewAccessCodeStore(db *sql.DB) *AccessCodeStore {
	return &AccessCodeStore{db: db}
}

func scanAccessCode(scanner interface{ Scan(...any) error }) (*model.AccessCode, error) {
	var ac model.AccessCode
	var usedBy sql.NullString
	var usedAt sql.NullTime

	err := scanner.Scan(&ac.ID, &ac.Code, &ac.Used, &usedBy, &usedAt, &ac.CreatedAt)
	if err != nil {
		return nil, err
	}

	if usedBy.Valid {
		ac.UsedBy = &usedBy.String
	}
	if usedAt.Valid {
		ac.UsedAt = &usedAt.Time
	}
	return &ac, nil
}

const accessCodeCols = `id, code, used, used_by, used_at, created_at`

// generateCode returns a random 8-byte hex invite code.
func generateCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create mints a new unused access code.
func (s *AccessCodeStore) Create() (*model.AccessCode, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(`INSERT INTO access_codes (code) VALUES (?)`, code)
	if err != nil {
		return nil, fmt.Errorf("insert access code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *AccessCodeStore) GetByID(id int64) (*model.AccessCode, error) {
	row := s.db.QueryRow(`SELECT `+accessCodeCols+` FROM access_codes WHERE id = ?`, id)
	ac, err := scanAccessCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access code: %w", err)
	}
	return ac, nil
}

func (s *AccessCodeStore) GetByCode(code string) (*model.AccessCode, error) {
	row := s.db.QueryRow(`SELECT `+accessCodeCols+` FROM access_codes WHERE code = ?`, code)
	ac, err := scanAccessCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access code by code: %w", err)
	}
	return ac, nil
}

// Claim marks the code as used by username. The conditional update is the
// atomicity mechanism: with concurrent claimants exactly one UPDATE matches
// the unused row, everyone else gets ErrCodeUnavailable. Never read-then-write.
func (s *AccessCodeStore) Claim(code, username string) error {
	return claim(s.db, code, username)
}

// ClaimTx is Claim inside an existing transaction, so a failed registration
// does not burn the code.
func (s *AccessCodeStore) ClaimTx(tx *sql.Tx, code, username string) error {
	return claim(tx, code, username)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func claim(db execer, code, username string) error {
	result, err := db.Exec(
		`UPDATE access_codes SET used = 1, used_by = ?, used_at = datetime('now') WHERE code = ? AND used = 0`,
		username, code,
	)
	if err != nil {
		return fmt.Errorf("claim access code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim rows affected: %w", err)
	}
	if n == 0 {
		return ErrCodeUnavailable
	}
	return nil
}

func (s *AccessCodeStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM access_codes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count access codes: %w", err)
	}
	return n, nil
}

func (s *AccessCodeStore) List() ([]model.AccessCode, error) {
	rows, err := s.db.Query(`SELECT ` + accessCodeCols + ` FROM access_codes ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list access codes: %w", err)
	}
	defer rows.Close()

	var codes []model.AccessCode
	for rows.Next() {
		ac, err := scanAccessCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access code: %w", err)
		}
		codes = append(codes, *ac)
	}
	return codes, rows.Err()
}
