package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/speakeval/internal/catalog"
	appI18n "github.com/pavelanni/speakeval/internal/i18n"
	"github.com/pavelanni/speakeval/internal/model"
	"github.com/pavelanni/speakeval/internal/session"
	"github.com/pavelanni/speakeval/internal/store"
)

const sessionCookieName = "session"

// Evaluator scores one recorded response against its target prompt.
type Evaluator interface {
	Evaluate(ctx context.Context, audioPath, promptText string) (model.Evaluation, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions *session.Manager
	catalog  *catalog.Catalog
	eval     Evaluator
	config   model.AssessmentConfig
}

// New creates a new Handler and ensures the audio directory exists.
func New(s *store.Store, sm *session.Manager, c *catalog.Catalog, ev Evaluator, cfg model.AssessmentConfig) (*Handler, error) {
	if cfg.AudioDir == "" {
		cfg.AudioDir = "audio"
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &Handler{store: s, sessions: sm, catalog: c, eval: ev, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/session", h.handleStart)
	r.Get("/api/question/{num}", h.handleQuestion)
	r.Post("/api/answer", h.handleAnswer)
	r.Post("/api/finalize", h.handleFinalize)

	r.Group(func(r chi.Router) {
		r.Use(h.requireReviewAuth)
		r.Get("/api/scores", h.handleScores)
		r.Get("/api/scores/{id}", h.handleScoreDetail)
	})
}

type startRequest struct {
	Name string `json:"name"`
}

type startResponse struct {
	Token          string `json:"token"`
	NextQuestion   int    `json:"next_question"`
	TotalQuestions int    `json:"total_questions"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "NameRequired")
		return
	}

	token, err := h.sessions.Start(req.Name)
	if errors.Is(err, session.ErrEmptyName) {
		h.writeError(w, r, http.StatusBadRequest, "NameRequired")
		return
	}
	if err != nil {
		slog.Error("failed to start session", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})

	slog.Info("session started", "student", req.Name)
	writeJSON(w, http.StatusCreated, startResponse{
		Token:          token,
		NextQuestion:   1,
		TotalQuestions: h.catalog.Count(),
	})
}

type questionResponse struct {
	QuestionNum    int    `json:"question_num"`
	TotalQuestions int    `json:"total_questions"`
	Prompt         string `json:"prompt"`
	StudentName    string `json:"student_name"`
}

func (h *Handler) handleQuestion(w http.ResponseWriter, r *http.Request) {
	state, _, ok := h.activeSession(w, r)
	if !ok {
		return
	}

	num, err := strconv.Atoi(chi.URLParam(r, "num"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "InvalidQuestion")
		return
	}
	prompt, err := h.catalog.At(num)
	if errors.Is(err, catalog.ErrOutOfRange) {
		h.writeError(w, r, http.StatusBadRequest, "InvalidQuestion")
		return
	}

	writeJSON(w, http.StatusOK, questionResponse{
		QuestionNum:    num,
		TotalQuestions: h.catalog.Count(),
		Prompt:         prompt,
		StudentName:    state.StudentName,
	})
}

type answerRequest struct {
	QuestionNum int    `json:"question_num"`
	Audio       string `json:"audio"`
}

type answerResponse struct {
	Status       string                `json:"status"`
	NextQuestion int                   `json:"next_question,omitempty"`
	Result       *model.QuestionResult `json:"result,omitempty"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	state, token, ok := h.activeSession(w, r)
	if !ok {
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "MissingAudio")
		return
	}

	// Validate everything before touching disk or session state.
	audio, err := decodeAudioPayload(req.Audio)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "MissingAudio")
		return
	}
	prompt, err := h.catalog.At(req.QuestionNum)
	if errors.Is(err, catalog.ErrOutOfRange) {
		h.writeError(w, r, http.StatusBadRequest, "InvalidQuestion")
		return
	}
	if req.QuestionNum <= state.Position() {
		h.writeError(w, r, http.StatusConflict, "InvalidQuestion")
		return
	}

	filename := audioFileName(state.StudentName, req.QuestionNum, time.Now())
	path := filepath.Join(h.config.AudioDir, filename)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		slog.Error("failed to write audio file", "path", path, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}

	// The two external calls in here can take seconds; only this request
	// blocks on them.
	ev, err := h.eval.Evaluate(r.Context(), path, prompt)
	if err != nil {
		// Only the propagate policy reaches this branch.
		slog.Error("evaluation failed", "student", state.StudentName, "question", req.QuestionNum, "error", err)
		h.writeError(w, r, http.StatusBadGateway, "InternalError")
		return
	}

	qr := model.QuestionResult{
		QuestionNumber: req.QuestionNum,
		PromptText:     prompt,
		Fluency:        ev.Fluency,
		Pronunciation:  ev.Pronunciation,
		Score:          ev.Score,
		Feedback:       ev.Feedback,
		AudioFile:      filename,
	}
	if err := h.sessions.Append(token, qr); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			h.writeError(w, r, http.StatusUnauthorized, "SessionExpired")
			return
		}
		h.writeError(w, r, http.StatusConflict, "InvalidQuestion")
		return
	}

	slog.Info("answer scored",
		"student", state.StudentName,
		"question", req.QuestionNum,
		"fluency", ev.Fluency,
		"pronunciation", ev.Pronunciation,
		"score", ev.Score,
	)

	if req.QuestionNum >= h.catalog.Count() {
		writeJSON(w, http.StatusOK, answerResponse{Status: "complete", Result: &qr})
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{
		Status:       "next",
		NextQuestion: req.QuestionNum + 1,
		Result:       &qr,
	})
}

type finalizeResponse struct {
	ID                 int64                  `json:"id"`
	StudentName        string                 `json:"student_name"`
	TotalFluency       float64                `json:"total_fluency"`
	TotalPronunciation float64                `json:"total_pronunciation"`
	TotalScore         float64                `json:"total_score"`
	OverallFeedback    string                 `json:"overall_feedback"`
	Questions          []model.QuestionResult `json:"questions"`
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	state, token, ok := h.activeSession(w, r)
	if !ok {
		return
	}
	if len(state.Answers) == 0 {
		h.writeError(w, r, http.StatusConflict, "NoAnswers")
		return
	}

	fs := aggregate(state, h.catalog.Count())
	id, err := h.store.SaveResult(fs)
	if err != nil {
		// Losing a completed assessment is unacceptable: surface the failure
		// and keep the session so the student can retry.
		slog.Error("failed to save finalized session", "student", state.StudentName, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "SaveFailed")
		return
	}
	h.sessions.Delete(token)

	slog.Info("session finalized",
		"id", id,
		"student", fs.StudentName,
		"answers", len(fs.Questions),
		"total_score", fs.TotalScore,
	)
	writeJSON(w, http.StatusOK, finalizeResponse{
		ID:                 id,
		StudentName:        fs.StudentName,
		TotalFluency:       round1(fs.TotalFluency),
		TotalPronunciation: round1(fs.TotalPronunciation),
		TotalScore:         round1(fs.TotalScore),
		OverallFeedback:    fs.OverallFeedback,
		Questions:          fs.Questions,
	})
}

func (h *Handler) handleScores(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ListResults()
	if err != nil {
		slog.Error("failed to list results", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	for i := range results {
		results[i] = roundSummary(results[i])
	}
	if results == nil {
		results = []model.TestSummary{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleScoreDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, r, http.StatusNotFound, "TestNotFound")
		return
	}

	detail, err := h.store.GetResult(id)
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, "TestNotFound")
		return
	}
	if err != nil {
		slog.Error("failed to get result", "id", id, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	detail.TestSummary = roundSummary(detail.TestSummary)
	writeJSON(w, http.StatusOK, detail)
}

// activeSession resolves the caller's session or writes a 401 and returns
// ok=false. Callers with no session are redirected to restart, never shown a
// raw error.
func (h *Handler) activeSession(w http.ResponseWriter, r *http.Request) (session.State, string, bool) {
	token := sessionToken(r)
	if token == "" {
		h.writeError(w, r, http.StatusUnauthorized, "SessionExpired")
		return session.State{}, "", false
	}
	state, err := h.sessions.Get(token)
	if err != nil {
		h.writeError(w, r, http.StatusUnauthorized, "SessionExpired")
		return session.State{}, "", false
	}
	return state, token, true
}

func sessionToken(r *http.Request) string {
	if t := r.Header.Get("X-Session-Token"); t != "" {
		return t
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// aggregate computes the arithmetic means over exactly the answers present.
// A partial run is permitted but marked distinctly in the overall feedback.
func aggregate(state session.State, totalQuestions int) model.FinalizedSession {
	var sumF, sumP, sumS float64
	for _, q := range state.Answers {
		sumF += float64(q.Fluency)
		sumP += float64(q.Pronunciation)
		sumS += float64(q.Score)
	}
	n := float64(len(state.Answers))

	feedback := "Test completed"
	if len(state.Answers) < totalQuestions {
		feedback = fmt.Sprintf("Partial: %d of %d questions answered", len(state.Answers), totalQuestions)
	}

	return model.FinalizedSession{
		StudentName:        state.StudentName,
		TotalFluency:       sumF / n,
		TotalPronunciation: sumP / n,
		TotalScore:         sumS / n,
		OverallFeedback:    feedback,
		Questions:          state.Answers,
	}
}

func roundSummary(ts model.TestSummary) model.TestSummary {
	ts.TotalFluency = round1(ts.TotalFluency)
	ts.TotalPronunciation = round1(ts.TotalPronunciation)
	ts.TotalScore = round1(ts.TotalScore)
	return ts
}

// round1 rounds to one decimal for presentation; stored values keep full
// precision.
func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), msgID)})
}
