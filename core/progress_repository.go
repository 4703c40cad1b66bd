package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Skill levels tracked per skill area.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// UserProgress is the per-user, per-skill-area progress row.
type UserProgress struct {
	UserID             string    `json:"userId"`
	SkillArea          string    `json:"skillArea"`
	CurrentLevel       string    `json:"currentLevel"`
	ProgressPercentage int       `json:"progressPercentage"`
	TotalTimeSpent     int       `json:"totalTimeSpent"` // minutes
	CompletedModules   []string  `json:"completedModules"`
	StreakDays         int       `json:"streakDays"`
	LastAccessedAt     time.Time `json:"lastAccessedAt"`
}

// ProgressInput is the upsert payload for a skill area.
type ProgressInput struct {
	SkillArea          string   `json:"skillArea" binding:"required"`
	CurrentLevel       string   `json:"currentLevel"`
	ProgressPercentage int      `json:"progressPercentage" binding:"min=0,max=100"`
	TotalTimeSpent     int      `json:"totalTimeSpent"`
	CompletedModules   []string `json:"completedModules"`
	StreakDays         int      `json:"streakDays"`
}

// ProgressRepository defines persistence for user progress.
type ProgressRepository interface {
	ListByUser(ctx context.Context, userID string) ([]UserProgress, error)
	Upsert(ctx context.Context, userID string, input ProgressInput) (*UserProgress, error)
}

// PgProgressRepository implements ProgressRepository using pgxpool.
type PgProgressRepository struct {
	db *pgxpool.Pool
}

func NewPgProgressRepository(db *pgxpool.Pool) *PgProgressRepository {
	return &PgProgressRepository{db: db}
}

const progressColumns = `user_id, skill_area, current_level, progress_percentage, total_time_spent, completed_modules, streak_days, last_accessed_at`

func scanProgress(row pgx.Row) (*UserProgress, error) {
	var p UserProgress
	var modules []byte
	if err := row.Scan(&p.UserID, &p.SkillArea, &p.CurrentLevel, &p.ProgressPercentage, &p.TotalTimeSpent, &modules, &p.StreakDays, &p.LastAccessedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(modules) > 0 {
		if err := json.Unmarshal(modules, &p.CompletedModules); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (r *PgProgressRepository) ListByUser(ctx context.Context, userID string) ([]UserProgress, error) {
	rows, err := r.db.Query(ctx, `SELECT `+progressColumns+` FROM user_progress WHERE user_id=$1 ORDER BY skill_area`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces the row for (user, skill area) and refreshes
// last_accessed_at.
func (r *PgProgressRepository) Upsert(ctx context.Context, userID string, input ProgressInput) (*UserProgress, error) {
	level := input.CurrentLevel
	if level == "" {
		level = LevelBeginner
	}
	modules, err := json.Marshal(input.CompletedModules)
	if err != nil {
		return nil, err
	}
	const q = `INSERT INTO user_progress
			(user_id, skill_area, current_level, progress_percentage, total_time_spent, completed_modules, streak_days, last_accessed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (user_id, skill_area) DO UPDATE SET
			current_level=EXCLUDED.current_level,
			progress_percentage=EXCLUDED.progress_percentage,
			total_time_spent=EXCLUDED.total_time_spent,
			completed_modules=EXCLUDED.completed_modules,
			streak_days=EXCLUDED.streak_days,
			last_accessed_at=now()
		RETURNING ` + progressColumns
	return scanProgress(r.db.QueryRow(ctx, q, userID, input.SkillArea, level, input.ProgressPercentage, input.TotalTimeSpent, modules, input.StreakDays))
}
