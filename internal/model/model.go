package model

import "time"

// FailurePolicy controls what the evaluator does when transcription or
// scoring fails.
type FailurePolicy string

const (
	// PolicyAbsorb converts any evaluation failure into a zero-score result
	// with diagnostic feedback. This is the default: a flaky external service
	// must never block a student mid-assessment.
	PolicyAbsorb FailurePolicy = "absorb"
	// PolicyRetry retries a failed evaluation once, then absorbs.
	PolicyRetry FailurePolicy = "retry"
	// PolicyPropagate returns the error to the caller.
	PolicyPropagate FailurePolicy = "propagate"
)

// IsValidPolicy checks if a failure policy name is valid.
func IsValidPolicy(p string) bool {
	switch FailurePolicy(p) {
	case PolicyAbsorb, PolicyRetry, PolicyPropagate:
		return true
	}
	return false
}

// Evaluation is the scored outcome of one audio submission.
// Score is always round((Fluency+Pronunciation)/2), including the
// degraded 0/0/0 case.
type Evaluation struct {
	Fluency       int    `json:"fluency"`
	Pronunciation int    `json:"pronunciation"`
	Score         int    `json:"score"`
	Feedback      string `json:"feedback"`
}

// QuestionResult is one answered prompt within a session. Immutable once
// appended to session state.
type QuestionResult struct {
	QuestionNumber int    `json:"question_number"`
	PromptText     string `json:"prompt_text"`
	Fluency        int    `json:"fluency"`
	Pronunciation  int    `json:"pronunciation"`
	Score          int    `json:"score"`
	Feedback       string `json:"feedback"`
	AudioFile      string `json:"audio_file"`
}

// FinalizedSession is the durable aggregate of a completed (or deliberately
// partial) session, written to the store exactly once.
type FinalizedSession struct {
	StudentName        string           `json:"student_name"`
	TotalFluency       float64          `json:"total_fluency"`
	TotalPronunciation float64          `json:"total_pronunciation"`
	TotalScore         float64          `json:"total_score"`
	OverallFeedback    string           `json:"overall_feedback"`
	Questions          []QuestionResult `json:"questions"`
}

// TestSummary is one row of the ranked results listing.
type TestSummary struct {
	ID                 int64     `json:"id"`
	StudentName        string    `json:"student_name"`
	TotalFluency       float64   `json:"total_fluency"`
	TotalPronunciation float64   `json:"total_pronunciation"`
	TotalScore         float64   `json:"total_score"`
	OverallFeedback    string    `json:"overall_feedback"`
	CreatedAt          time.Time `json:"created_at"`
}

// TestDetail is a finalized session with its per-question breakdown,
// questions in ascending question-number order.
type TestDetail struct {
	TestSummary
	Questions []QuestionResult `json:"questions"`
}

// AssessmentConfig holds runtime parameters set via CLI flags.
type AssessmentConfig struct {
	AudioDir       string // directory for recorded submissions
	FeedbackLang   string // language the evaluator writes feedback in
	SecureCookies  bool   // Set Secure flag on session cookies (disable for local dev)
	ReviewPassword string // bcrypt hash guarding the scores endpoints; empty = open
}
