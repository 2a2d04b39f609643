package service

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	apperrors "github.com/target/greeter-api/internal/errors"
)

// MaxMessageBytes caps rendered message size. It matches the platform's
// direct message limit.
const MaxMessageBytes = 10000

var errMessageTooLarge = fmt.Errorf("rendered message exceeds %d bytes", MaxMessageBytes)

// legacyPlaceholder matches the older single-brace form, e.g. "{username}".
var legacyPlaceholder = regexp.MustCompile(`\{\s*(username|owner)\s*\}`)

// MessageData is the data a message template is executed with.
type MessageData struct {
	Username string
	Owner    string
}

// MessageTemplate is a parsed welcome message.
type MessageTemplate struct {
	source string
	tmpl   *template.Template
}

// ParseMessageTemplate parses raw with text/template after rewriting legacy
// placeholders. The template is trial-rendered so unknown fields and
// oversized output surface at submission rather than mid-run.
func ParseMessageTemplate(raw string) (*MessageTemplate, error) {
	src := strings.TrimSpace(raw)
	if src == "" {
		return nil, apperrors.ValidationField("message_template", "message template is empty")
	}
	if !strings.Contains(src, "{{") {
		src = legacyPlaceholder.ReplaceAllStringFunc(src, func(m string) string {
			name := strings.TrimSpace(strings.Trim(m, "{}"))
			return "{{." + strings.ToUpper(name[:1]) + name[1:] + "}}"
		})
	}

	tmpl, err := template.New("message").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, apperrors.ValidationField("message_template", "invalid message template: "+err.Error())
	}

	mt := &MessageTemplate{source: src, tmpl: tmpl}
	if _, err := mt.Render("sample", "owner"); err != nil {
		return nil, apperrors.ValidationField("message_template", "invalid message template: "+err.Error())
	}
	return mt, nil
}

// Source returns the normalized template text.
func (t *MessageTemplate) Source() string { return t.source }

// Render executes the template for one recipient. Execution stops as soon as
// the output passes MaxMessageBytes.
func (t *MessageTemplate) Render(username, owner string) (string, error) {
	buf := &cappedBuffer{max: MaxMessageBytes}
	if err := t.tmpl.Execute(buf, MessageData{Username: username, Owner: owner}); err != nil {
		if errors.Is(err, errMessageTooLarge) {
			return "", apperrors.ValidationField("message_template", errMessageTooLarge.Error())
		}
		return "", err
	}
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", apperrors.Validation("message template rendered empty text")
	}
	return text, nil
}

// cappedBuffer fails writes that would grow it past max.
type cappedBuffer struct {
	bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.Len()+len(p) > b.max {
		return 0, errMessageTooLarge
	}
	return b.Buffer.Write(p)
}
