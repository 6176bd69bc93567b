package service

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/nimbl/backend/internal/models"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// sanitizeText strips all markup and returns plain text.
func sanitizeText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(textSanitizer().Sanitize(trimmed)))
}

// sanitizeProps cleans the user-entered text of a field and checks its
// validation settings.
func sanitizeProps(p models.FieldProps) (models.FieldProps, error) {
	out := p.Clone()
	out.Label = sanitizeText(p.Label)
	out.Placeholder = sanitizeText(p.Placeholder)
	out.HelpText = sanitizeText(p.HelpText)
	for i, opt := range out.Options {
		out.Options[i] = sanitizeText(opt)
	}
	if s, ok := out.DefaultValue.(string); ok {
		out.DefaultValue = sanitizeText(s)
	}

	if out.Pattern != "" {
		if _, err := regexp.Compile(out.Pattern); err != nil {
			return p, fmt.Errorf("%w: pattern: %v", ErrInvalidInput, err)
		}
	}
	if out.MinLength != nil && *out.MinLength < 0 {
		return p, fmt.Errorf("%w: minLength must not be negative", ErrInvalidInput)
	}
	if out.MinLength != nil && out.MaxLength != nil && *out.MinLength > *out.MaxLength {
		return p, fmt.Errorf("%w: minLength exceeds maxLength", ErrInvalidInput)
	}
	if out.Min != nil && out.Max != nil && *out.Min > *out.Max {
		return p, fmt.Errorf("%w: min exceeds max", ErrInvalidInput)
	}
	return out, nil
}

// sanitizeDefinition cleans every field of def in place.
func sanitizeDefinition(def *models.FormDefinition) error {
	def.Title = sanitizeText(def.Title)
	for id, f := range def.Fields {
		props, err := sanitizeProps(f.Props)
		if err != nil {
			return fmt.Errorf("field %s: %w", id, err)
		}
		f.Props = props
		def.Fields[id] = f
	}
	return nil
}
