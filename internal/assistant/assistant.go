package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventdesk/eventdesk/internal/observability"
	"github.com/eventdesk/eventdesk/internal/sqlexec"
)

// User-facing messages. The read-only policy message is a stable contract: it
// tells the user a boundary was enforced, not that something broke.
const (
	msgCouldNotUnderstand = "I couldn't understand your request. Could you please rephrase it?"
	msgReadOnlyPolicy     = "Only SELECT queries are allowed for security reasons."
	msgTryAgainLater      = "An error occurred while processing your request. Please try again later."
	msgUnableToGenerate   = "Unable to generate SQL query"
)

// Terminal outcomes of a turn, used for metrics and HTTP status mapping.
const (
	OutcomeAnswered           = "answered"
	OutcomeTranslationInvalid = "translation_invalid"
	OutcomeRejected           = "rejected"
	OutcomeExecutionFailed    = "execution_failed"
	OutcomeHumanizationFailed = "humanization_failed"
)

// Answer is the caller-facing result of one turn. Constructed fresh per
// request, never persisted. GeneratedQuery is nil on the translation-invalid
// branch (no query exists to show) and populated on execution and
// humanization branches.
type Answer struct {
	Success        bool             `json:"success"`
	Answer         *string          `json:"answer"`
	GeneratedQuery *string          `json:"generated_query"`
	Explanation    *string          `json:"explanation"`
	Rows           []map[string]any `json:"rows,omitempty"`
	RowCount       int              `json:"row_count"`
	ErrorMessage   *string          `json:"error_message"`
	Outcome        string           `json:"-"`
}

// ModelClient is the generative endpoint as the orchestrator sees it.
type ModelClient interface {
	Translate(ctx context.Context, systemPrompt string) (string, error)
	Humanize(ctx context.Context, prompt string) (string, error)
}

// QueryExecutor validates and runs a candidate query against the event store.
type QueryExecutor interface {
	Execute(ctx context.Context, statement string) (sqlexec.Rows, error)
}

// Service owns the end-to-end turn: translate, gate and execute, humanize.
// The two model calls are strictly sequential; no state is shared between
// turns.
type Service struct {
	prompts  *PromptBuilder
	model    ModelClient
	executor QueryExecutor
	logger   *slog.Logger
}

func NewService(prompts *PromptBuilder, model ModelClient, executor QueryExecutor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{prompts: prompts, model: model, executor: executor, logger: logger}
}

// Ask runs one user turn. Every failure mode folds into the Answer; the
// method never returns partial state from a previous stage.
func (s *Service) Ask(ctx context.Context, userQuery, userID string) Answer {
	log := s.logger.With(
		slog.String("turn_id", uuid.NewString()),
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
	)
	log.InfoContext(ctx, "assistant turn started", slog.String("user_id", userID))

	translation, ok := s.translate(ctx, log, userQuery, userID)
	if !ok {
		observability.ObserveAssistantTurn(OutcomeTranslationInvalid)
		return couldNotUnderstand(translation)
	}

	log.InfoContext(ctx, "query generated", slog.String("statement", translation.SQL))

	start := time.Now()
	rows, err := s.executor.Execute(ctx, translation.SQL)
	observability.ObserveAssistantStage("execute", time.Since(start))
	if err != nil {
		return s.executionFailure(ctx, log, translation, err)
	}
	observability.ObserveRowsReturned(rows.Count())
	log.InfoContext(ctx, "query executed", slog.Int("row_count", rows.Count()))

	narrated, err := s.humanize(ctx, log, userQuery, translation.SQL, rows)
	if err != nil {
		observability.ObserveAssistantTurn(OutcomeHumanizationFailed)
		return Answer{
			Success:        false,
			GeneratedQuery: ptr(translation.SQL),
			Explanation:    optional(translation.Explanation),
			RowCount:       rows.Count(),
			ErrorMessage:   ptr(msgTryAgainLater),
			Outcome:        OutcomeHumanizationFailed,
		}
	}

	observability.ObserveAssistantTurn(OutcomeAnswered)
	return Answer{
		Success:        true,
		Answer:         ptr(narrated),
		GeneratedQuery: ptr(translation.SQL),
		Explanation:    optional(translation.Explanation),
		Rows:           rows.Rows,
		RowCount:       rows.Count(),
		Outcome:        OutcomeAnswered,
	}
}

// translate runs the first model call and parses its output. A model or
// parser fault here is the model's own uncertainty, an expected outcome, so
// it is logged and recovered, not surfaced as a system error.
func (s *Service) translate(ctx context.Context, log *slog.Logger, userQuery, userID string) (Translation, bool) {
	start := time.Now()
	raw, err := s.model.Translate(ctx, s.prompts.Translation(userQuery, userID))
	observability.ObserveAssistantStage("translate", time.Since(start))
	if err != nil {
		log.ErrorContext(ctx, "translation call failed", slog.Any("error", err))
		return Translation{}, false
	}

	translation, err := ParseTranslation(raw)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			log.ErrorContext(ctx, "translation parse failed",
				slog.Any("error", err),
				slog.String("raw_preview", parseErr.Preview),
			)
		} else {
			log.ErrorContext(ctx, "translation parse failed", slog.Any("error", err))
		}
		return Translation{}, false
	}
	if !translation.IsValid() {
		log.WarnContext(ctx, "model declined to generate a query", slog.String("notes", translation.Notes))
		return translation, false
	}
	return translation, true
}

func (s *Service) humanize(ctx context.Context, log *slog.Logger, userQuery, sqlQuery string, rows sqlexec.Rows) (string, error) {
	prompt, err := s.prompts.Humanization(userQuery, sqlQuery, rows)
	if err != nil {
		log.ErrorContext(ctx, "humanization prompt failed", slog.Any("error", err))
		return "", ErrHumanizationFailed
	}

	start := time.Now()
	narrated, err := s.model.Humanize(ctx, prompt)
	observability.ObserveAssistantStage("humanize", time.Since(start))
	if err != nil {
		log.ErrorContext(ctx, "humanization call failed", slog.Any("error", err))
		return "", ErrHumanizationFailed
	}
	return strings.TrimSpace(narrated), nil
}

func (s *Service) executionFailure(ctx context.Context, log *slog.Logger, translation Translation, err error) Answer {
	answer := Answer{
		Success:        false,
		GeneratedQuery: ptr(translation.SQL),
		Explanation:    optional(translation.Explanation),
	}
	if errors.Is(err, sqlexec.ErrRejected) {
		log.WarnContext(ctx, "generated query rejected", slog.Any("error", err))
		observability.ObserveAssistantTurn(OutcomeRejected)
		answer.ErrorMessage = ptr(msgReadOnlyPolicy)
		answer.Outcome = OutcomeRejected
		return answer
	}
	log.ErrorContext(ctx, "generated query failed to execute", slog.Any("error", err))
	observability.ObserveAssistantTurn(OutcomeExecutionFailed)
	answer.ErrorMessage = ptr(msgTryAgainLater)
	answer.Outcome = OutcomeExecutionFailed
	return answer
}

// couldNotUnderstand builds the polite terminal answer for the
// translation-invalid branch, preferring the model's own notes when it
// explained itself.
func couldNotUnderstand(translation Translation) Answer {
	message := msgCouldNotUnderstand
	if strings.TrimSpace(translation.Notes) != "" {
		message = translation.Notes
	}
	return Answer{
		Success:      false,
		Answer:       ptr(message),
		Explanation:  optional(translation.Explanation),
		ErrorMessage: ptr(msgUnableToGenerate),
		Outcome:      OutcomeTranslationInvalid,
	}
}

func ptr(value string) *string {
	return &value
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
