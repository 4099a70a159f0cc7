package responder

import (
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

const DefaultSystemPrompt = `You are an assistant in a branching conversation.
{{- if .IsBranch }}
The user is exploring an alternative direction starting from the last exchange below. Do not assume the other branches exist.
{{- else if gt .Depth 0 }}
The user is continuing the conversation below.
{{- else }}
This is the start of a new conversation.
{{- end }}
Keep answers concise. Today is {{ .Now | date "2006-01-02" }}.`

type PromptData struct {
	IsBranch bool
	Depth    int
	Model    string
	Now      time.Time
}

// RenderSystemPrompt executes tmpl with the sprig function map.
func RenderSystemPrompt(tmpl string, data PromptData) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	if data.Now.IsZero() {
		data.Now = time.Now()
	}
	t, err := template.New("system-prompt").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "parse system prompt template")
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", errors.Wrap(err, "render system prompt")
	}
	return strings.TrimSpace(sb.String()), nil
}
