package eval

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformed is returned when the evaluator's text response does not
// contain a parseable score object even after fence stripping.
var ErrMalformed = errors.New("malformed evaluation response")

const defaultSubscore = 50

// Scores is the validated triple extracted from a raw evaluator response.
type Scores struct {
	Fluency       int
	Pronunciation int
	Feedback      string
}

// rawScores tolerates missing fields and non-integer numbers; models
// occasionally return 87.0 instead of 87.
type rawScores struct {
	Fluency       *float64 `json:"fluency"`
	Pronunciation *float64 `json:"pronunciation"`
	Feedback      string   `json:"feedback"`
}

// ParseScores extracts fluency, pronunciation, and feedback from a raw model
// response. The response nominally contains a bare JSON object, but may be
// wrapped in code fences with an optional language tag. Missing subscores
// default to 50; missing feedback gets a placeholder. Content that is not a
// JSON object at all fails with ErrMalformed.
func ParseScores(raw string) (Scores, error) {
	content := stripFences(raw)

	var r rawScores
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return Scores{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	s := Scores{
		Fluency:       defaultSubscore,
		Pronunciation: defaultSubscore,
		Feedback:      r.Feedback,
	}
	if r.Fluency != nil {
		s.Fluency = clampScore(*r.Fluency)
	}
	if r.Pronunciation != nil {
		s.Pronunciation = clampScore(*r.Pronunciation)
	}
	if s.Feedback == "" {
		s.Feedback = "No feedback available"
	}
	return s, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag on the opening line.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag up to the first newline, if any.
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{}") {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func clampScore(v float64) int {
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// CompositeScore derives the composite score from the two subscores.
func CompositeScore(fluency, pronunciation int) int {
	return int(math.Round(float64(fluency+pronunciation) / 2))
}
