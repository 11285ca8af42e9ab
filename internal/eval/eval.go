package eval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/speakeval/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

const defaultTimeout = 60 * time.Second

// Client wraps an OpenAI-compatible API for the two external collaborators:
// speech-to-text transcription and score evaluation.
type Client struct {
	api             *openai.Client
	transcribeModel string
	evalModel       string
	feedbackLang    string
	policy          model.FailurePolicy
	timeout         time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy sets the failure policy (default absorb).
func WithPolicy(p model.FailurePolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithTimeout bounds each external call (default 60s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates an evaluator client. feedbackLang is the language the model is
// instructed to write feedback in.
func New(baseURL, apiKey, transcribeModel, evalModel, feedbackLang string, opts ...Option) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	c := &Client{
		api:             openai.NewClientWithConfig(config),
		transcribeModel: transcribeModel,
		evalModel:       evalModel,
		feedbackLang:    feedbackLang,
		policy:          model.PolicyAbsorb,
		timeout:         defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping verifies the API endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Evaluate scores one recorded response against its target prompt:
// transcribe the audio, ask the model for fluency and pronunciation
// subscores with localized feedback, parse the response, and derive the
// composite score.
//
// Under the absorb policy (the default) Evaluate never returns an error:
// any failure yields a complete zero-score Evaluation whose feedback carries
// the cause. The retry policy retries once before absorbing; propagate
// returns the error.
func (c *Client) Evaluate(ctx context.Context, audioPath, promptText string) (model.Evaluation, error) {
	ev, err := c.evaluateOnce(ctx, audioPath, promptText)
	if err != nil && c.policy == model.PolicyRetry {
		slog.Warn("evaluation failed, retrying once", "audio", audioPath, "error", err)
		ev, err = c.evaluateOnce(ctx, audioPath, promptText)
	}
	if err != nil {
		if c.policy == model.PolicyPropagate {
			return model.Evaluation{}, err
		}
		slog.Error("evaluation failed, scoring as zero", "audio", audioPath, "error", err)
		return degraded(err), nil
	}
	return ev, nil
}

func (c *Client) evaluateOnce(ctx context.Context, audioPath, promptText string) (model.Evaluation, error) {
	transcript, err := c.Transcribe(ctx, audioPath)
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("transcribe: %w", err)
	}
	slog.Debug("transcript received", "audio", audioPath, "transcript", transcript)

	scores, err := c.score(ctx, promptText, transcript)
	if err != nil {
		return model.Evaluation{}, err
	}

	return model.Evaluation{
		Fluency:       scores.Fluency,
		Pronunciation: scores.Pronunciation,
		Score:         CompositeScore(scores.Fluency, scores.Pronunciation),
		Feedback:      scores.Feedback,
	}, nil
}

// Transcribe converts a recorded audio file to text.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcribeModel,
		FilePath: audioPath,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) score(ctx context.Context, promptText, transcript string) (Scores, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.evalModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildScoringPrompt(promptText, transcript, c.feedbackLang)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return Scores{}, fmt.Errorf("score API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Scores{}, fmt.Errorf("score API returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("scoring response", "raw", raw)

	scores, err := ParseScores(raw)
	if err != nil {
		return Scores{}, fmt.Errorf("parse scoring response: %w (raw: %s)", err, raw)
	}
	return scores, nil
}

func buildScoringPrompt(promptText, transcript, lang string) string {
	var sb strings.Builder
	sb.WriteString("You are an English speaking assessment AI.\n")
	sb.WriteString("The student was asked to read: \"" + promptText + "\"\n")
	sb.WriteString("The student said: \"" + transcript + "\"\n\n")
	sb.WriteString("Evaluate:\n")
	sb.WriteString("- Fluency: smoothness, natural flow, pacing (0-100)\n")
	sb.WriteString("- Pronunciation: clarity, accuracy of sounds (0-100)\n\n")
	sb.WriteString("Provide specific feedback in " + languageName(lang) + " about pronunciation errors and fluency issues.\n\n")
	sb.WriteString("Respond ONLY with a JSON object (no markdown):\n")
	sb.WriteString(`{"fluency": <int 0-100>, "pronunciation": <int 0-100>, "feedback": "<feedback>"}`)
	sb.WriteString("\n")
	return sb.String()
}

// languageName spells out the language for the model; tags alone are often
// ignored by smaller models.
func languageName(tag string) string {
	switch strings.ToLower(tag) {
	case "id":
		return "Indonesian"
	case "en":
		return "English"
	case "ru":
		return "Russian"
	default:
		return tag
	}
}

func degraded(cause error) model.Evaluation {
	return model.Evaluation{
		Fluency:       0,
		Pronunciation: 0,
		Score:         0,
		Feedback:      "Error: " + cause.Error(),
	}
}
