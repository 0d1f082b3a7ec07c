package assistant

import (
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/eventdesk/eventdesk/internal/sqlexec"
)

//go:embed prompts/*.txt
var promptFS embed.FS

const (
	translationTemplateFile  = "prompts/sql_generator_prompt.txt"
	humanizationTemplateFile = "prompts/human_response_prompt.txt"

	// userRequestMarker is the single insertion point in the translation
	// template; the user's text and caller ID are spliced in directly below
	// it. No escaping happens here: the safety gate downstream is the trust
	// boundary for whatever the model produces.
	userRequestMarker = "[=== USER REQUEST ===]"
)

var humanizationPlaceholders = []string{
	"{USER_QUERY}", "{SQL_QUERY}", "{RESULT_COUNT}", "{DATA_JSON}",
}

// PromptBuilder holds the two fixed templates, loaded once at construction.
// A missing or incomplete template is a startup failure, never a per-request
// one.
type PromptBuilder struct {
	translation  string
	humanization string
}

func NewPromptBuilder() (*PromptBuilder, error) {
	translation, err := loadTemplate(translationTemplateFile)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(translation, userRequestMarker) {
		return nil, fmt.Errorf("template %s is missing the %s marker", translationTemplateFile, userRequestMarker)
	}

	humanization, err := loadTemplate(humanizationTemplateFile)
	if err != nil {
		return nil, err
	}
	for _, placeholder := range humanizationPlaceholders {
		if !strings.Contains(humanization, placeholder) {
			return nil, fmt.Errorf("template %s is missing the %s placeholder", humanizationTemplateFile, placeholder)
		}
	}

	return &PromptBuilder{translation: translation, humanization: humanization}, nil
}

func loadTemplate(name string) (string, error) {
	raw, err := promptFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("load prompt template %s: %w", name, err)
	}
	content := string(raw)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("prompt template %s is empty", name)
	}
	return content, nil
}

// Translation splices the user's raw text and the caller's opaque ID into the
// translation template at the marker.
func (b *PromptBuilder) Translation(userQuery, userID string) string {
	return strings.Replace(b.translation, userRequestMarker,
		userRequestMarker+"\n"+userQuery+"\nCurrent user ID: "+userID, 1)
}

// Humanization fills the narration template with the original question, the
// executed query, the row count and a compact JSON rendering of the rows.
func (b *PromptBuilder) Humanization(userQuery, sqlQuery string, rows sqlexec.Rows) (string, error) {
	data, err := json.Marshal(rows.Rows)
	if err != nil {
		return "", fmt.Errorf("serialize result rows: %w", err)
	}
	replacer := strings.NewReplacer(
		"{USER_QUERY}", userQuery,
		"{SQL_QUERY}", sqlQuery,
		"{RESULT_COUNT}", strconv.Itoa(rows.Count()),
		"{DATA_JSON}", string(data),
	)
	return replacer.Replace(b.humanization), nil
}
