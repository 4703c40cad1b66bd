package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LearningStep is one entry in a learning path; the slice is stored as JSONB.
type LearningStep struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ResourceURL string `json:"resourceUrl,omitempty"`
	Completed   bool   `json:"completed"`
}

// LearningPath is a user-owned sequence of study steps on a topic.
type LearningPath struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Title     string         `json:"title"`
	Topic     string         `json:"topic"`
	Steps     []LearningStep `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// LearningPathInput is the create/update payload.
type LearningPathInput struct {
	Title string         `json:"title" binding:"required"`
	Topic string         `json:"topic" binding:"required"`
	Steps []LearningStep `json:"steps"`
}

// LearningPathRepository defines persistence for learning paths.
type LearningPathRepository interface {
	ListByUser(ctx context.Context, userID string) ([]LearningPath, error)
	FindByID(ctx context.Context, id string) (*LearningPath, error)
	Create(ctx context.Context, userID string, input LearningPathInput) (*LearningPath, error)
	Update(ctx context.Context, id string, input LearningPathInput) (*LearningPath, error)
	Delete(ctx context.Context, id string) error
}

// PgLearningPathRepository implements LearningPathRepository using pgxpool.
type PgLearningPathRepository struct {
	db *pgxpool.Pool
}

func NewPgLearningPathRepository(db *pgxpool.Pool) *PgLearningPathRepository {
	return &PgLearningPathRepository{db: db}
}

const learningPathColumns = `id, user_id, title, topic, steps, created_at, updated_at`

func scanLearningPath(row pgx.Row) (*LearningPath, error) {
	var lp LearningPath
	var steps []byte
	if err := row.Scan(&lp.ID, &lp.UserID, &lp.Title, &lp.Topic, &steps, &lp.CreatedAt, &lp.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &lp.Steps); err != nil {
			return nil, err
		}
	}
	return &lp, nil
}

func (r *PgLearningPathRepository) ListByUser(ctx context.Context, userID string) ([]LearningPath, error) {
	rows, err := r.db.Query(ctx, `SELECT `+learningPathColumns+` FROM learning_paths WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LearningPath
	for rows.Next() {
		lp, err := scanLearningPath(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lp)
	}
	return out, rows.Err()
}

func (r *PgLearningPathRepository) FindByID(ctx context.Context, id string) (*LearningPath, error) {
	const q = `SELECT ` + learningPathColumns + ` FROM learning_paths WHERE id=$1`
	return scanLearningPath(r.db.QueryRow(ctx, q, id))
}

func (r *PgLearningPathRepository) Create(ctx context.Context, userID string, input LearningPathInput) (*LearningPath, error) {
	steps, err := json.Marshal(input.Steps)
	if err != nil {
		return nil, err
	}
	const q = `INSERT INTO learning_paths (user_id, title, topic, steps) VALUES ($1,$2,$3,$4) RETURNING ` + learningPathColumns
	return scanLearningPath(r.db.QueryRow(ctx, q, userID, input.Title, input.Topic, steps))
}

func (r *PgLearningPathRepository) Update(ctx context.Context, id string, input LearningPathInput) (*LearningPath, error) {
	steps, err := json.Marshal(input.Steps)
	if err != nil {
		return nil, err
	}
	const q = `UPDATE learning_paths SET title=$2, topic=$3, steps=$4, updated_at=now() WHERE id=$1 RETURNING ` + learningPathColumns
	return scanLearningPath(r.db.QueryRow(ctx, q, id, input.Title, input.Topic, steps))
}

func (r *PgLearningPathRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM learning_paths WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
