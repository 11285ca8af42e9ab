package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/speakeval/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a finalized test id does not exist.
var ErrNotFound = errors.New("test not found")

// Store persists finalized assessments. Records are append-only: once a
// session is finalized it is never updated or deleted.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS student_tests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_name TEXT NOT NULL,
		total_fluency REAL NOT NULL,
		total_pronunciation REAL NOT NULL,
		total_score REAL NOT NULL,
		overall_feedback TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS question_scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_id INTEGER NOT NULL,
		question_number INTEGER NOT NULL,
		prompt_text TEXT NOT NULL,
		fluency INTEGER NOT NULL,
		pronunciation INTEGER NOT NULL,
		score INTEGER NOT NULL,
		feedback TEXT NOT NULL DEFAULT '',
		audio_file TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (test_id) REFERENCES student_tests(id)
	);

	CREATE INDEX IF NOT EXISTS idx_question_scores_test
		ON question_scores(test_id, question_number);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveResult writes one finalized session: the aggregate row plus all its
// per-question rows in a single transaction, so a parent record never lands
// without its children.
func (s *Store) SaveResult(fs model.FinalizedSession) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO student_tests (student_name, total_fluency, total_pronunciation, total_score, overall_feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fs.StudentName, fs.TotalFluency, fs.TotalPronunciation, fs.TotalScore, fs.OverallFeedback, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	testID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, q := range fs.Questions {
		_, err := tx.Exec(
			`INSERT INTO question_scores (test_id, question_number, prompt_text, fluency, pronunciation, score, feedback, audio_file)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			testID, q.QuestionNumber, q.PromptText, q.Fluency, q.Pronunciation, q.Score, q.Feedback, q.AudioFile,
		)
		if err != nil {
			return 0, err
		}
	}

	return testID, tx.Commit()
}

// ListResults returns all finalized tests, best average score first, ties
// broken by recency.
func (s *Store) ListResults() ([]model.TestSummary, error) {
	rows, err := s.db.Query(
		`SELECT id, student_name, total_fluency, total_pronunciation, total_score, overall_feedback, created_at
		 FROM student_tests
		 ORDER BY total_score DESC, created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.TestSummary
	for rows.Next() {
		var ts model.TestSummary
		if err := rows.Scan(&ts.ID, &ts.StudentName, &ts.TotalFluency, &ts.TotalPronunciation, &ts.TotalScore, &ts.OverallFeedback, &ts.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, ts)
	}
	return results, rows.Err()
}

// GetResult returns one finalized test with its per-question breakdown in
// ascending question-number order.
func (s *Store) GetResult(id int64) (model.TestDetail, error) {
	var d model.TestDetail
	err := s.db.QueryRow(
		`SELECT id, student_name, total_fluency, total_pronunciation, total_score, overall_feedback, created_at
		 FROM student_tests WHERE id = ?`, id,
	).Scan(&d.ID, &d.StudentName, &d.TotalFluency, &d.TotalPronunciation, &d.TotalScore, &d.OverallFeedback, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return model.TestDetail{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return model.TestDetail{}, err
	}

	rows, err := s.db.Query(
		`SELECT question_number, prompt_text, fluency, pronunciation, score, feedback, audio_file
		 FROM question_scores WHERE test_id = ? ORDER BY question_number`, id,
	)
	if err != nil {
		return model.TestDetail{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var q model.QuestionResult
		if err := rows.Scan(&q.QuestionNumber, &q.PromptText, &q.Fluency, &q.Pronunciation, &q.Score, &q.Feedback, &q.AudioFile); err != nil {
			return model.TestDetail{}, err
		}
		d.Questions = append(d.Questions, q)
	}
	return d, rows.Err()
}

// TestCount returns the number of finalized tests.
func (s *Store) TestCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM student_tests`).Scan(&count)
	return count, err
}
