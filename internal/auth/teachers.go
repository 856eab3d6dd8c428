package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for an unknown email or a wrong password.
var ErrBadCredentials = errors.New("bad credentials")

// Teacher is a class master allowed to drive the monitor display of a class.
type Teacher struct {
	ID           string
	Email        string
	PasswordHash string
	ClassID      string
}

// Teachers stores teacher accounts.
type Teachers struct {
	db *sql.DB
}

// NewTeachers creates a teacher store.
func NewTeachers(db *sql.DB) *Teachers {
	return &Teachers{db: db}
}

// Create adds a teacher with a bcrypt-hashed password.
func (t *Teachers) Create(ctx context.Context, email, password, classID string) (Teacher, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" || classID == "" {
		return Teacher{}, errors.New("email, password and class are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Teacher{}, fmt.Errorf("hash password: %w", err)
	}
	tc := Teacher{ID: uuid.NewString(), Email: email, PasswordHash: string(hash), ClassID: classID}
	if _, err := t.db.ExecContext(ctx, `INSERT INTO classes (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, classID); err != nil {
		return Teacher{}, err
	}
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO teachers (id, email, password_hash, class_id) VALUES ($1, $2, $3, $4)
	`, tc.ID, tc.Email, tc.PasswordHash, tc.ClassID)
	if err != nil {
		return Teacher{}, err
	}
	return tc, nil
}

// GetByEmail returns the teacher or nil.
func (t *Teachers) GetByEmail(ctx context.Context, email string) (*Teacher, error) {
	var tc Teacher
	err := t.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, class_id FROM teachers WHERE email = $1
	`, normalizeEmail(email)).Scan(&tc.ID, &tc.Email, &tc.PasswordHash, &tc.ClassID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tc, nil
}

// Authenticate checks the password and returns the teacher's identity.
func (t *Teachers) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	tc, err := t.GetByEmail(ctx, email)
	if err != nil {
		return Identity{}, err
	}
	if tc == nil {
		return Identity{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(tc.PasswordHash), []byte(password)); err != nil {
		return Identity{}, ErrBadCredentials
	}
	return Identity{TeacherID: tc.ID, ClassID: tc.ClassID}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
