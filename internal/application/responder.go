package application

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"text/template"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

// DefaultTemplates returns the built-in reply set, one to two candidates per
// sentiment label.
func DefaultTemplates() []model.Template {
	return []model.Template{
		{ID: "positive-thanks", Label: model.SentimentPositive, Text: "Thank you for your positive feedback! We're glad you found this helpful."},
		{ID: "positive-named", Label: model.SentimentPositive, Text: "Thanks{{with .AuthorName}}, {{.}}{{end}}! Really happy this resonated with you."},
		{ID: "neutral-thanks", Label: model.SentimentNeutral, Text: "Thank you for your comment! We value your input."},
		{ID: "neutral-named", Label: model.SentimentNeutral, Text: "Thanks for sharing your thoughts{{with .AuthorName}}, {{.}}{{end}}."},
		{ID: "negative-improve", Label: model.SentimentNegative, Text: "We appreciate your feedback. We're constantly working to improve our content."},
		{ID: "negative-followup", Label: model.SentimentNegative, Text: "Sorry this missed the mark{{with .AuthorName}}, {{.}}{{end}}. We'd love to hear how we can do better."},
	}
}

// templateData is the context a reply template is rendered against.
type templateData struct {
	AuthorName string
	PostURN    string
	Text       string
	Polarity   float64
	Label      string
}

type compiledTemplate struct {
	id   string
	tmpl *template.Template
}

// ResponseGenerator picks and renders a reply template for a classified
// comment. Selection among candidates is keyed by the comment ID, so
// regenerating for the same comment always yields the same reply.
type ResponseGenerator struct {
	byLabel map[model.SentimentLabel][]compiledTemplate
}

// NewResponseGenerator validates and compiles templates. Every sentiment label
// needs at least one template, IDs must be unique, and each text must parse.
// Violations return a *model.ConfigurationError.
func NewResponseGenerator(templates []model.Template) (*ResponseGenerator, error) {
	g := &ResponseGenerator{byLabel: make(map[model.SentimentLabel][]compiledTemplate)}
	seen := make(map[string]bool, len(templates))

	for _, t := range templates {
		if t.ID == "" {
			return nil, &model.ConfigurationError{Field: "templates", Reason: "template without id"}
		}
		if seen[t.ID] {
			return nil, &model.ConfigurationError{Field: "templates", Reason: fmt.Sprintf("duplicate template id %q", t.ID)}
		}
		seen[t.ID] = true

		if !t.Label.Valid() {
			return nil, &model.ConfigurationError{Field: "templates", Reason: fmt.Sprintf("template %q has unknown label %q", t.ID, t.Label)}
		}

		tmpl, err := template.New(t.ID).Option("missingkey=zero").Parse(t.Text)
		if err != nil {
			return nil, &model.ConfigurationError{Field: "templates", Reason: fmt.Sprintf("parse template %q: %v", t.ID, err)}
		}
		// Unknown fields only fail at execution, so render once against an
		// empty context to surface them at startup.
		if err := tmpl.Execute(io.Discard, templateData{}); err != nil {
			return nil, &model.ConfigurationError{Field: "templates", Reason: fmt.Sprintf("render template %q: %v", t.ID, err)}
		}

		g.byLabel[t.Label] = append(g.byLabel[t.Label], compiledTemplate{id: t.ID, tmpl: tmpl})
	}

	for _, label := range model.SentimentLabels {
		if len(g.byLabel[label]) == 0 {
			return nil, &model.ConfigurationError{Field: "templates", Reason: fmt.Sprintf("no template for label %q", label)}
		}
	}

	return g, nil
}

// Generate renders the reply for a comment. The result depends only on the
// sentiment label and the comment.
func (g *ResponseGenerator) Generate(sentiment model.SentimentResult, comment model.Comment) (model.Response, error) {
	candidates := g.byLabel[sentiment.Label]
	if len(candidates) == 0 {
		return model.Response{}, &model.ConfigurationError{Field: "templates", Reason: fmt.Sprintf("no template for label %q", sentiment.Label)}
	}

	chosen := candidates[selectIndex(comment.ID, len(candidates))]

	var buf bytes.Buffer
	err := chosen.tmpl.Execute(&buf, templateData{
		AuthorName: comment.AuthorName,
		PostURN:    comment.PostURN,
		Text:       comment.Text,
		Polarity:   sentiment.Polarity,
		Label:      string(sentiment.Label),
	})
	if err != nil {
		return model.Response{}, fmt.Errorf("render template %q: %w", chosen.id, err)
	}

	return model.Response{Text: buf.String(), TemplateID: chosen.id}, nil
}

// Candidates returns the template IDs registered for label, in order.
func (g *ResponseGenerator) Candidates(label model.SentimentLabel) []string {
	ids := make([]string, 0, len(g.byLabel[label]))
	for _, c := range g.byLabel[label] {
		ids = append(ids, c.id)
	}
	return ids
}

// selectIndex maps a comment ID onto [0, n) with FNV-1a.
func selectIndex(commentID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(commentID))
	return int(h.Sum32() % uint32(n))
}
