package render

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"chat-widget/internal/domain"
)

// Formatter turns raw message text into markup that is safe to inject.
type Formatter interface {
	Render(raw string) string
}

type Mode string

const (
	ModeBasic    Mode = "basic"
	ModePlain    Mode = "plain"
	ModeMarkdown Mode = "markdown"
)

// New returns the formatter for mode. An empty mode selects ModeBasic.
func New(mode Mode) (Formatter, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case ModeBasic, "":
		return Basic{}, nil
	case ModePlain:
		return Plain{}, nil
	case ModeMarkdown:
		return NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("render: unknown mode %q", mode)
	}
}

var (
	boldPattern   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern = regexp.MustCompile(`\*(.*?)\*`)
)

// Basic applies, in order: HTML escaping, **bold**, *italic*, and newline to
// <br>. Emphasis is non-greedy, leftmost-first and never nests; a lone '*'
// left over by the bold pass is picked up by the italic pass, so "**a*"
// renders as "<em></em>a*".
type Basic struct{}

func (Basic) Render(raw string) string {
	out := html.EscapeString(raw)
	out = boldPattern.ReplaceAllString(out, "<strong>$1</strong>")
	out = italicPattern.ReplaceAllString(out, "<em>$1</em>")
	return strings.ReplaceAll(out, "\n", "<br>")
}

// Plain only escapes; the page shows the text as-is.
type Plain struct{}

func (Plain) Render(raw string) string {
	return html.EscapeString(raw)
}

// Markdown renders CommonMark and sanitizes the result.
type Markdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewMarkdown() *Markdown {
	return &Markdown{
		md:     goldmark.New(),
		policy: bluemonday.UGCPolicy(),
	}
}

func (m *Markdown) Render(raw string) string {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(raw), &buf); err != nil {
		return Plain{}.Render(raw)
	}
	return strings.TrimSpace(m.policy.Sanitize(buf.String()))
}

// MessageView is a transcript entry shaped for the widget.
type MessageView struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
	HTML    string      `json:"html"`
	Time    string      `json:"time"`
}

func View(m domain.Message, f Formatter) MessageView {
	return MessageView{
		Role:    m.Role,
		Content: m.Content,
		HTML:    f.Render(m.Content),
		Time:    m.Time,
	}
}

func Views(msgs []domain.Message, f Formatter) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, View(m, f))
	}
	return out
}
