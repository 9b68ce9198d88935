package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/store"
)

// Directory is the pgx implementation of store.StudentDirectory and
// store.InstructorStore.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory creates a new Directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func scanStudent(row pgx.Row) (*model.Student, error) {
	st := &model.Student{}
	err := row.Scan(&st.ID, &st.Name, &st.Email, &st.LearningPath, &st.PasswordHash,
		&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return st, nil
}

// GetStudent retrieves a student profile by id.
func (d *Directory) GetStudent(ctx context.Context, id int) (*model.Student, error) {
	return scanStudent(d.pool.QueryRow(ctx,
		`SELECT id, name, email, learning_path, password_hash, created_at, updated_at
		 FROM students WHERE id = $1`, id))
}

// GetStudentByEmail retrieves a student profile by email.
func (d *Directory) GetStudentByEmail(ctx context.Context, email string) (*model.Student, error) {
	return scanStudent(d.pool.QueryRow(ctx,
		`SELECT id, name, email, learning_path, password_hash, created_at, updated_at
		 FROM students WHERE email = $1`, email))
}

// ResolveRoster returns the students matched by the targeting spec.
func (d *Directory) ResolveRoster(ctx context.Context, learningPaths []string, studentIDs []int) ([]model.Student, error) {
	query := `SELECT id, name, email, learning_path, password_hash, created_at, updated_at
		 FROM students WHERE learning_path = ANY($1) ORDER BY name`
	arg := any(learningPaths)
	if len(studentIDs) > 0 {
		query = `SELECT id, name, email, learning_path, password_hash, created_at, updated_at
		 FROM students WHERE id = ANY($1) ORDER BY name`
		arg = studentIDs
	}

	rows, err := d.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanInstructor(row pgx.Row) (*model.Instructor, error) {
	ins := &model.Instructor{}
	err := row.Scan(&ins.ID, &ins.Name, &ins.Email, &ins.PasswordHash,
		&ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return ins, nil
}

// GetInstructor retrieves an instructor by id.
func (d *Directory) GetInstructor(ctx context.Context, id int) (*model.Instructor, error) {
	return scanInstructor(d.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		 FROM instructors WHERE id = $1`, id))
}

// GetInstructorByEmail retrieves an instructor by email.
func (d *Directory) GetInstructorByEmail(ctx context.Context, email string) (*model.Instructor, error) {
	return scanInstructor(d.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		 FROM instructors WHERE email = $1`, email))
}

// CreateInstructor inserts a new instructor account.
func (d *Directory) CreateInstructor(ctx context.Context, ins *model.Instructor) error {
	return d.pool.QueryRow(ctx,
		`INSERT INTO instructors (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		ins.Name, ins.Email, ins.PasswordHash,
	).Scan(&ins.ID, &ins.CreatedAt, &ins.UpdatedAt)
}
