package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/speakeval/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func finalizedSession(name string, score float64) model.FinalizedSession {
	return model.FinalizedSession{
		StudentName:        name,
		TotalFluency:       score,
		TotalPronunciation: score,
		TotalScore:         score,
		OverallFeedback:    "Test completed",
		Questions: []model.QuestionResult{
			{QuestionNumber: 1, PromptText: "P1", Fluency: 80, Pronunciation: 90, Score: 85, Feedback: "ok", AudioFile: name + "_q1.webm"},
			{QuestionNumber: 2, PromptText: "P2", Fluency: 60, Pronunciation: 70, Score: 65, Feedback: "ok", AudioFile: name + "_q2.webm"},
		},
	}
}

func TestSaveAndGetResult(t *testing.T) {
	s := newTestStore(t)

	fs := model.FinalizedSession{
		StudentName:        "Alice",
		TotalFluency:       70,
		TotalPronunciation: 80,
		TotalScore:         75,
		OverallFeedback:    "Test completed",
		Questions: []model.QuestionResult{
			{QuestionNumber: 1, PromptText: "P1", Fluency: 80, Pronunciation: 90, Score: 85, Feedback: "Bagus", AudioFile: "alice_q1.webm"},
			{QuestionNumber: 2, PromptText: "P2", Fluency: 60, Pronunciation: 70, Score: 65, Feedback: "Cukup", AudioFile: "alice_q2.webm"},
		},
	}

	id, err := s.SaveResult(fs)
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	d, err := s.GetResult(id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if d.StudentName != "Alice" {
		t.Errorf("expected student Alice, got %q", d.StudentName)
	}
	if d.TotalFluency != 70 || d.TotalPronunciation != 80 || d.TotalScore != 75 {
		t.Errorf("unexpected aggregates: %+v", d.TestSummary)
	}
	if d.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
	if len(d.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(d.Questions))
	}
	for i, q := range d.Questions {
		if q.QuestionNumber != i+1 {
			t.Errorf("question %d out of order: number %d", i, q.QuestionNumber)
		}
	}
	if d.Questions[0].Feedback != "Bagus" {
		t.Errorf("expected feedback 'Bagus', got %q", d.Questions[0].Feedback)
	}
	if d.Questions[1].AudioFile != "alice_q2.webm" {
		t.Errorf("expected audio file alice_q2.webm, got %q", d.Questions[1].AudioFile)
	}
}

func TestGetResultNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetResult(9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetResult error = %v, want ErrNotFound", err)
	}
}

func TestQuestionsStoredInAscendingOrder(t *testing.T) {
	s := newTestStore(t)

	// Children inserted out of order must still come back sorted.
	fs := finalizedSession("Bob", 70)
	fs.Questions[0], fs.Questions[1] = fs.Questions[1], fs.Questions[0]

	id, err := s.SaveResult(fs)
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	d, err := s.GetResult(id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if d.Questions[0].QuestionNumber != 1 || d.Questions[1].QuestionNumber != 2 {
		t.Errorf("questions not in ascending order: %d then %d",
			d.Questions[0].QuestionNumber, d.Questions[1].QuestionNumber)
	}
}

func TestListResultsRanking(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SaveResult(finalizedSession("Low", 40)); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if _, err := s.SaveResult(finalizedSession("High", 90)); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	// Same score as High but more recent: recency breaks the tie.
	if _, err := s.SaveResult(finalizedSession("HighLater", 90)); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	results, err := s.ListResults()
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []string{"HighLater", "High", "Low"}
	for i, w := range want {
		if results[i].StudentName != w {
			t.Errorf("rank %d = %q, want %q", i, results[i].StudentName, w)
		}
	}
}

func TestTestCount(t *testing.T) {
	s := newTestStore(t)

	count, err := s.TestCount()
	if err != nil {
		t.Fatalf("TestCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 tests, got %d", count)
	}

	if _, err := s.SaveResult(finalizedSession("Alice", 75)); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	count, _ = s.TestCount()
	if count != 1 {
		t.Errorf("expected 1 test, got %d", count)
	}
}

func TestExportAll(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SaveResult(finalizedSession("Low", 40)); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if _, err := s.SaveResult(finalizedSession("High", 90)); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	details, err := s.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(details))
	}
	if details[0].StudentName != "High" {
		t.Errorf("expected ranked order, got %q first", details[0].StudentName)
	}
	if len(details[0].Questions) != 2 {
		t.Errorf("expected children in export, got %d", len(details[0].Questions))
	}
}

func TestConcurrentSaves(t *testing.T) {
	// A file-backed database: concurrent saves from separate goroutines
	// must each land as a consistent parent+children set.
	path := filepath.Join(t.TempDir(), "speakeval.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("student-%d", i)
			if _, err := s.SaveResult(finalizedSession(name, float64(50+i))); err != nil {
				t.Errorf("SaveResult %s: %v", name, err)
			}
		}(i)
	}
	wg.Wait()

	results, err := s.ListResults()
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != n {
		t.Fatalf("expected %d results, got %d", n, len(results))
	}
	for _, ts := range results {
		d, err := s.GetResult(ts.ID)
		if err != nil {
			t.Fatalf("GetResult %d: %v", ts.ID, err)
		}
		if len(d.Questions) != 2 {
			t.Errorf("test %d has %d children, want 2", ts.ID, len(d.Questions))
		}
		for _, q := range d.Questions {
			if q.AudioFile != d.StudentName+fmt.Sprintf("_q%d.webm", q.QuestionNumber) {
				t.Errorf("test %d child %d carries another session's data: %q",
					ts.ID, q.QuestionNumber, q.AudioFile)
			}
		}
	}
}
