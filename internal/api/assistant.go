package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/eventdesk/eventdesk/internal/assistant"
	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/internal/config"
)

const (
	minQueryLength = 3
	maxQueryLength = 500
)

type assistantQueryRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

func handleAssistantQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", false, nil)
		return
	}

	var request assistantQueryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid assistant request body", false, map[string]any{"details": err.Error()})
		return
	}

	query := strings.TrimSpace(request.Query)
	if length := utf8.RuneCountInString(query); length < minQueryLength || length > maxQueryLength {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_LENGTH", "query must be between 3 and 500 characters", false, nil)
		return
	}

	// An authenticated identity always wins over a caller-supplied user ID;
	// the body field exists for deployments that run without auth.
	userID := request.UserID
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		userID = identity.UserID
	}
	if _, err := uuid.Parse(userID); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "USER_ID_INVALID", "a valid user id is required", false, nil)
		return
	}

	answer := deps.Assistant.Ask(r.Context(), query, userID)
	writeJSON(w, statusForOutcome(answer.Outcome), answer)
}

// statusForOutcome maps a turn's terminal state onto HTTP. The two
// conversational outcomes stay 200: a polite "please rephrase" is a
// successful exchange even though no query ran.
func statusForOutcome(outcome string) int {
	switch outcome {
	case assistant.OutcomeAnswered, assistant.OutcomeTranslationInvalid:
		return http.StatusOK
	case assistant.OutcomeRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func handleAssistantHealth(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

var exampleQuestions = []string{
	"What events am I attending this month?",
	"Show me public events happening next week",
	"Which of my events have the most participants?",
	"List events tagged 'workshop' that still have capacity",
}

func handleAssistantCapabilities(cfg config.Config, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"model":             cfg.AI.Model,
		"read_only":         true,
		"min_query_length":  minQueryLength,
		"max_query_length":  maxQueryLength,
		"example_questions": exampleQuestions,
	})
}
