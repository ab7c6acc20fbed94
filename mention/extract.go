// Package mention scans message text for references to known users.
package mention

import (
	"fmt"
	"regexp"

	"github.com/roomcast-chat/roomcast/config"
	"github.com/samber/lo"
)

// The two supported mention conventions. A deployment picks exactly one, so
// a given token is only ever matched by a single pattern.
var (
	usernamePattern = regexp.MustCompile(`@([A-Za-z0-9_]+)\b`)
	emailPattern    = regexp.MustCompile(`@([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
)

// Field names the directory field a candidate token is resolved against.
type Field int

const (
	FieldUsername Field = iota
	FieldEmail
)

// Extractor finds mention candidates with the configured pattern.
type Extractor struct {
	re    *regexp.Regexp
	field Field
}

func NewExtractor(cfg config.MentionConfig) (*Extractor, error) {
	switch cfg.Pattern {
	case "username":
		return &Extractor{re: usernamePattern, field: FieldUsername}, nil

	case "email":
		return &Extractor{re: emailPattern, field: FieldEmail}, nil
	}
	return nil, fmt.Errorf("unknown mention pattern %q", cfg.Pattern)
}

// Field returns the directory field the extractor's candidates refer to.
func (e *Extractor) Field() Field {
	return e.field
}

// Extract returns the candidate tokens found in text, without the leading @,
// de-duplicated, in order of first occurrence.
func (e *Extractor) Extract(text string) []string {
	matches := e.re.FindAllStringSubmatch(text, -1)
	tokens := lo.Map(matches, func(m []string, _ int) string { return m[1] })
	return lo.Uniq(tokens)
}
