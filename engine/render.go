package engine

import (
	"fmt"
	"strings"

	"leadpilot/models"
)

// Renderer is the content/template collaborator: it turns a template ref
// and a lead into ready-to-send text. The engine treats the output as
// opaque; it must be deterministic for a given (template, lead) pair
// because idempotency keys hash it.
type Renderer interface {
	Render(templateRef string, lead *models.Lead) (subject, body string, err error)
}

// StaticRenderer is the documented fallback used when no external content
// service is wired: a fixed library of plain-text templates with lead
// field substitution.
type StaticRenderer struct {
	templates map[string][2]string // ref -> {subject, body}
}

func NewStaticRenderer() *StaticRenderer {
	return &StaticRenderer{templates: map[string][2]string{
		"intro": {
			"Quick question for {{company}}",
			"Hi {{first_name}},\n\nI noticed {{company}} and wanted to reach out. Would you be open to a short conversation?\n",
		},
		"follow-up": {
			"Following up",
			"Hi {{first_name}},\n\nCircling back on my last note. Any thoughts?\n",
		},
		"break-up": {
			"Closing the loop",
			"Hi {{first_name}},\n\nI haven't heard back so I'll stop reaching out. If timing changes, I'm happy to reconnect.\n",
		},
	}}
}

// Register adds or replaces a template.
func (r *StaticRenderer) Register(ref, subject, body string) {
	r.templates[ref] = [2]string{subject, body}
}

func (r *StaticRenderer) Render(templateRef string, lead *models.Lead) (string, string, error) {
	tpl, ok := r.templates[templateRef]
	if !ok {
		return "", "", fmt.Errorf("unknown template ref %q", templateRef)
	}
	return substitute(tpl[0], lead), substitute(tpl[1], lead), nil
}

func substitute(text string, lead *models.Lead) string {
	replacer := strings.NewReplacer(
		"{{first_name}}", fallback(lead.FirstName, "there"),
		"{{last_name}}", lead.LastName,
		"{{company}}", fallback(lead.Company, "your company"),
		"{{title}}", lead.Title,
	)
	return replacer.Replace(text)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
