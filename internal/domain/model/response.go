package model

// Response is a generated reply to a comment.
type Response struct {
	Text       string
	TemplateID string
}

// Template is one candidate reply for a sentiment label. Text is a Go
// text/template rendered against the comment context.
type Template struct {
	ID    string         `yaml:"id"`
	Label SentimentLabel `yaml:"label"`
	Text  string         `yaml:"text"`
}
