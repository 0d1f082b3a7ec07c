package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/eventdesk/eventdesk/internal/sqlexec"
)

type fakeModel struct {
	translateResponse string
	translateErr      error
	humanizeResponse  string
	humanizeErr       error

	translateCalls int
	humanizeCalls  int
	lastHumanize   string
}

func (f *fakeModel) Translate(_ context.Context, _ string) (string, error) {
	f.translateCalls++
	return f.translateResponse, f.translateErr
}

func (f *fakeModel) Humanize(_ context.Context, prompt string) (string, error) {
	f.humanizeCalls++
	f.lastHumanize = prompt
	return f.humanizeResponse, f.humanizeErr
}

type fakeExecutor struct {
	rows sqlexec.Rows
	err  error

	calls         int
	lastStatement string
}

func (f *fakeExecutor) Execute(_ context.Context, statement string) (sqlexec.Rows, error) {
	f.calls++
	f.lastStatement = statement
	return f.rows, f.err
}

func newTestService(t *testing.T, model *fakeModel, executor *fakeExecutor) *Service {
	t.Helper()
	builder, err := NewPromptBuilder()
	if err != nil {
		t.Fatalf("NewPromptBuilder: %v", err)
	}
	return NewService(builder, model, executor, slog.New(slog.DiscardHandler))
}

const testUserID = "7a9f5c0e-1f9d-4c93-a9d3-2f8b1f6f4a01"

func TestAskHappyPath(t *testing.T) {
	model := &fakeModel{
		translateResponse: "```json\n" + `{"sql":"SELECT id, title FROM events","explanation":"All events"}` + "\n```",
		humanizeResponse:  "You have two events coming up.\n",
	}
	executor := &fakeExecutor{rows: sqlexec.Rows{
		Columns: []string{"id", "title"},
		Rows: []map[string]any{
			{"id": "1", "title": "Town Hall"},
			{"id": "2", "title": "Retro"},
		},
	}}
	service := newTestService(t, model, executor)

	answer := service.Ask(context.Background(), "what events are coming up", testUserID)

	if !answer.Success {
		t.Fatalf("expected success, got %+v", answer)
	}
	if answer.Outcome != OutcomeAnswered {
		t.Fatalf("unexpected outcome %q", answer.Outcome)
	}
	if answer.Answer == nil || *answer.Answer != "You have two events coming up." {
		t.Fatalf("unexpected answer %v", answer.Answer)
	}
	if answer.GeneratedQuery == nil || *answer.GeneratedQuery != "SELECT id, title FROM events" {
		t.Fatalf("unexpected generated query %v", answer.GeneratedQuery)
	}
	if answer.Explanation == nil || *answer.Explanation != "All events" {
		t.Fatalf("unexpected explanation %v", answer.Explanation)
	}
	if answer.RowCount != 2 || len(answer.Rows) != 2 {
		t.Fatalf("unexpected rows: count=%d len=%d", answer.RowCount, len(answer.Rows))
	}
	if executor.lastStatement != "SELECT id, title FROM events" {
		t.Fatalf("executor received %q", executor.lastStatement)
	}
	if model.translateCalls != 1 || model.humanizeCalls != 1 {
		t.Fatalf("unexpected call counts: translate=%d humanize=%d", model.translateCalls, model.humanizeCalls)
	}
}

func TestAskEmptySQLNeverReachesExecutor(t *testing.T) {
	model := &fakeModel{
		translateResponse: `{"sql":"","notes":"Ambiguous request, please clarify."}`,
	}
	executor := &fakeExecutor{}
	service := newTestService(t, model, executor)

	answer := service.Ask(context.Background(), "do the thing", testUserID)

	if answer.Success {
		t.Fatal("expected failure")
	}
	if answer.Outcome != OutcomeTranslationInvalid {
		t.Fatalf("unexpected outcome %q", answer.Outcome)
	}
	if executor.calls != 0 {
		t.Fatalf("executor should not be invoked, got %d calls", executor.calls)
	}
	if model.humanizeCalls != 0 {
		t.Fatalf("humanize should not be invoked, got %d calls", model.humanizeCalls)
	}
	if answer.Answer == nil || *answer.Answer != "Ambiguous request, please clarify." {
		t.Fatalf("expected notes verbatim, got %v", answer.Answer)
	}
	if answer.ErrorMessage == nil || *answer.ErrorMessage != msgUnableToGenerate {
		t.Fatalf("unexpected error message %v", answer.ErrorMessage)
	}
	if answer.GeneratedQuery != nil {
		t.Fatalf("no query should be reported, got %v", *answer.GeneratedQuery)
	}
}

func TestAskTranslationFaultsFoldIntoPoliteAnswer(t *testing.T) {
	cases := []struct {
		name  string
		model *fakeModel
	}{
		{name: "model unavailable", model: &fakeModel{translateErr: fmt.Errorf("%w: status 503", ErrModelUnavailable)}},
		{name: "malformed response", model: &fakeModel{translateErr: fmt.Errorf("%w: empty choices", ErrMalformedResponse)}},
		{name: "unparseable text", model: &fakeModel{translateResponse: "I cannot help with that."}},
		{name: "missing sql field", model: &fakeModel{translateResponse: `{"explanation":"nothing"}`}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			executor := &fakeExecutor{}
			service := newTestService(t, tc.model, executor)

			answer := service.Ask(context.Background(), "what events are coming up", testUserID)

			if answer.Success {
				t.Fatal("expected failure")
			}
			if answer.Outcome != OutcomeTranslationInvalid {
				t.Fatalf("unexpected outcome %q", answer.Outcome)
			}
			if answer.Answer == nil || *answer.Answer != msgCouldNotUnderstand {
				t.Fatalf("unexpected answer %v", answer.Answer)
			}
			if executor.calls != 0 {
				t.Fatal("executor should not be invoked")
			}
		})
	}
}

func TestAskRejectedQueryUsesStablePolicyMessage(t *testing.T) {
	model := &fakeModel{
		translateResponse: `{"sql":"DELETE FROM events","explanation":"remove them"}`,
	}
	executor := &fakeExecutor{err: fmt.Errorf("%w: not a read statement", sqlexec.ErrRejected)}
	service := newTestService(t, model, executor)

	answer := service.Ask(context.Background(), "delete all my events", testUserID)

	if answer.Success {
		t.Fatal("expected failure")
	}
	if answer.Outcome != OutcomeRejected {
		t.Fatalf("unexpected outcome %q", answer.Outcome)
	}
	if answer.ErrorMessage == nil || *answer.ErrorMessage != msgReadOnlyPolicy {
		t.Fatalf("unexpected error message %v", answer.ErrorMessage)
	}
	if answer.GeneratedQuery == nil || *answer.GeneratedQuery != "DELETE FROM events" {
		t.Fatalf("unexpected generated query %v", answer.GeneratedQuery)
	}
	if model.humanizeCalls != 0 {
		t.Fatal("humanize should not be invoked after rejection")
	}
}

func TestAskExecutionFailureIsGeneric(t *testing.T) {
	model := &fakeModel{
		translateResponse: `{"sql":"SELECT missing FROM events"}`,
	}
	executor := &fakeExecutor{err: sqlexec.ErrExecutionFailed}
	service := newTestService(t, model, executor)

	answer := service.Ask(context.Background(), "what events are coming up", testUserID)

	if answer.Success {
		t.Fatal("expected failure")
	}
	if answer.Outcome != OutcomeExecutionFailed {
		t.Fatalf("unexpected outcome %q", answer.Outcome)
	}
	if answer.ErrorMessage == nil || *answer.ErrorMessage != msgTryAgainLater {
		t.Fatalf("unexpected error message %v", answer.ErrorMessage)
	}
	if model.humanizeCalls != 0 {
		t.Fatal("humanize should not be invoked after an execution failure")
	}
}

func TestAskZeroRowsStillHumanizes(t *testing.T) {
	model := &fakeModel{
		translateResponse: `{"sql":"SELECT id FROM events WHERE false"}`,
		humanizeResponse:  "You have no events matching that.",
	}
	executor := &fakeExecutor{rows: sqlexec.Rows{Columns: []string{"id"}, Rows: []map[string]any{}}}
	service := newTestService(t, model, executor)

	answer := service.Ask(context.Background(), "any events in 1970?", testUserID)

	if !answer.Success {
		t.Fatalf("expected success, got %+v", answer)
	}
	if answer.RowCount != 0 {
		t.Fatalf("unexpected row count %d", answer.RowCount)
	}
	if model.humanizeCalls != 1 {
		t.Fatal("humanize should run for an empty result set")
	}
	if answer.Answer == nil || *answer.Answer != "You have no events matching that." {
		t.Fatalf("unexpected answer %v", answer.Answer)
	}
}

func TestAskHumanizationFailureKeepsQueryAndCount(t *testing.T) {
	model := &fakeModel{
		translateResponse: `{"sql":"SELECT id FROM events","explanation":"All event IDs"}`,
		humanizeErr:       fmt.Errorf("%w: status 503", ErrModelUnavailable),
	}
	executor := &fakeExecutor{rows: sqlexec.Rows{
		Columns: []string{"id"},
		Rows:    []map[string]any{{"id": "1"}},
	}}
	service := newTestService(t, model, executor)

	answer := service.Ask(context.Background(), "what events are coming up", testUserID)

	if answer.Success {
		t.Fatal("expected failure")
	}
	if answer.Outcome != OutcomeHumanizationFailed {
		t.Fatalf("unexpected outcome %q", answer.Outcome)
	}
	if answer.ErrorMessage == nil || *answer.ErrorMessage != msgTryAgainLater {
		t.Fatalf("unexpected error message %v", answer.ErrorMessage)
	}
	if answer.GeneratedQuery == nil || *answer.GeneratedQuery != "SELECT id FROM events" {
		t.Fatalf("unexpected generated query %v", answer.GeneratedQuery)
	}
	if answer.RowCount != 1 {
		t.Fatalf("unexpected row count %d", answer.RowCount)
	}
	if answer.Answer != nil {
		t.Fatalf("no narrated answer expected, got %q", *answer.Answer)
	}
}

func TestAskHumanizePromptCarriesRowData(t *testing.T) {
	model := &fakeModel{
		translateResponse: `{"sql":"SELECT title FROM events"}`,
		humanizeResponse:  "One event.",
	}
	executor := &fakeExecutor{rows: sqlexec.Rows{
		Columns: []string{"title"},
		Rows:    []map[string]any{{"title": "Town Hall"}},
	}}
	service := newTestService(t, model, executor)

	service.Ask(context.Background(), "what events are coming up", testUserID)

	if model.lastHumanize == "" {
		t.Fatal("humanize prompt not captured")
	}
	for _, want := range []string{"what events are coming up", "SELECT title FROM events", `"title":"Town Hall"`} {
		if !strings.Contains(model.lastHumanize, want) {
			t.Fatalf("humanize prompt missing %q", want)
		}
	}
}
