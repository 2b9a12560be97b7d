package db

import (
	"context"
	"fmt"
	"time"

	"courseforge/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queries bundles the course persistence operations around a pool.
type Queries struct {
	pool *pgxpool.Pool
}

// New creates a Queries instance.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS courses (
	id         UUID PRIMARY KEY,
	title      TEXT NOT NULL,
	prompt     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sections (
	id                UUID PRIMARY KEY,
	course_id         UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	position          INT  NOT NULL,
	title             TEXT NOT NULL,
	content           TEXT NOT NULL DEFAULT '',
	video_url         TEXT NOT NULL DEFAULT '',
	discussion_prompt TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS questions (
	id            UUID PRIMARY KEY,
	section_id    UUID NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
	position      INT  NOT NULL,
	question_text TEXT NOT NULL,
	options       TEXT[] NOT NULL,
	answer        TEXT NOT NULL,
	hint          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sections_course ON sections(course_id, position);
CREATE INDEX IF NOT EXISTS idx_questions_section ON questions(section_id, position);
`

// EnsureSchema creates the tables when they do not exist yet.
func (q *Queries) EnsureSchema(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveCourse writes a course with its sections and questions in one
// transaction. Positions preserve generation order.
func (q *Queries) SaveCourse(ctx context.Context, course models.Course) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO courses (id, title, prompt, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		course.ID, course.Title, course.Prompt, now)
	if err != nil {
		return fmt.Errorf("failed to insert course: %w", err)
	}

	for i, sec := range course.Sections {
		sectionID := uuid.New()
		_, err = tx.Exec(ctx,
			`INSERT INTO sections (id, course_id, position, title, content, video_url, discussion_prompt)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sectionID, course.ID, i, sec.Title, sec.Content, sec.VideoURL, sec.DiscussionPrompt)
		if err != nil {
			return fmt.Errorf("failed to insert section %d: %w", i, err)
		}

		for j, question := range sec.Questions {
			_, err = tx.Exec(ctx,
				`INSERT INTO questions (id, section_id, position, question_text, options, answer, hint)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				uuid.New(), sectionID, j, question.QuestionText, question.Options, question.Answer, question.Hint)
			if err != nil {
				return fmt.Errorf("failed to insert question %d of section %d: %w", j, i, err)
			}
		}
	}

	return tx.Commit(ctx)
}

// GetCourse loads one course with sections ordered by position and each
// section's questions in order.
func (q *Queries) GetCourse(ctx context.Context, courseID uuid.UUID) (models.Course, error) {
	var course models.Course
	err := q.pool.QueryRow(ctx,
		`SELECT id, title, prompt, created_at, updated_at FROM courses WHERE id = $1`,
		courseID).Scan(&course.ID, &course.Title, &course.Prompt, &course.CreatedAt, &course.UpdatedAt)
	if err != nil {
		return models.Course{}, err
	}

	rows, err := q.pool.Query(ctx,
		`SELECT id, title, content, video_url, discussion_prompt
		 FROM sections WHERE course_id = $1 ORDER BY position`,
		courseID)
	if err != nil {
		return models.Course{}, fmt.Errorf("failed to load sections: %w", err)
	}
	defer rows.Close()

	var sectionIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		var sec models.Section
		if err := rows.Scan(&id, &sec.Title, &sec.Content, &sec.VideoURL, &sec.DiscussionPrompt); err != nil {
			return models.Course{}, fmt.Errorf("failed to scan section: %w", err)
		}
		sectionIDs = append(sectionIDs, id)
		course.Sections = append(course.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return models.Course{}, err
	}

	for i, sectionID := range sectionIDs {
		questions, err := q.sectionQuestions(ctx, sectionID)
		if err != nil {
			return models.Course{}, err
		}
		course.Sections[i].Questions = questions
	}

	return course, nil
}

func (q *Queries) sectionQuestions(ctx context.Context, sectionID uuid.UUID) ([]models.Question, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT question_text, options, answer, hint
		 FROM questions WHERE section_id = $1 ORDER BY position`,
		sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var question models.Question
		if err := rows.Scan(&question.QuestionText, &question.Options, &question.Answer, &question.Hint); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, question)
	}
	return questions, rows.Err()
}

// ListCourses returns course headers (no sections), newest first.
func (q *Queries) ListCourses(ctx context.Context) ([]models.Course, int64, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT id, title, prompt, created_at, updated_at FROM courses ORDER BY created_at DESC`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.Title, &c.Prompt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return courses, int64(len(courses)), nil
}

// DeleteCourse removes a course; sections and questions cascade.
func (q *Queries) DeleteCourse(ctx context.Context, courseID uuid.UUID) error {
	tag, err := q.pool.Exec(ctx, `DELETE FROM courses WHERE id = $1`, courseID)
	if err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
