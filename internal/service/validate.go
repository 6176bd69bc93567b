package service

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/models"
)

// ValidateSubmission checks values against the fields of def and returns
// one message per problem, required fields first, then unknown ids, then
// per-field constraints in reading order. A definition without fields
// accepts anything.
func ValidateSubmission(def models.FormDefinition, values map[string]any) []string {
	var issues []string
	if len(def.Fields) == 0 {
		return issues
	}
	fields := form.SortedFields(def)

	for _, f := range fields {
		if f.Props.Required && !f.Type.IsStructural() && isEmpty(values[f.ID]) {
			issues = append(issues, fmt.Sprintf("Field \"%s\" is required", fieldName(f)))
		}
	}

	unknown := make([]string, 0)
	for id := range values {
		if _, ok := def.Fields[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		issues = append(issues, fmt.Sprintf("Field \"%s\" does not exist in this form", id))
	}

	for _, f := range fields {
		v, ok := values[f.ID]
		if !ok || isEmpty(v) {
			continue
		}
		issues = append(issues, checkConstraints(f, v)...)
	}
	return issues
}

func checkConstraints(f models.Field, v any) []string {
	var issues []string
	name := fieldName(f)
	p := f.Props
	text := stringify(v)

	if f.Type == models.FieldTypeNumber {
		n, ok := toNumber(v)
		if !ok {
			issues = append(issues, fmt.Sprintf("Field \"%s\" must be a number", name))
		} else {
			if p.Min != nil && n < *p.Min {
				issues = append(issues, fmt.Sprintf("Field \"%s\" must be at least %s", name, formatNumber(*p.Min)))
			}
			if p.Max != nil && n > *p.Max {
				issues = append(issues, fmt.Sprintf("Field \"%s\" must not exceed %s", name, formatNumber(*p.Max)))
			}
		}
	}

	length := utf8.RuneCountInString(text)
	if p.MinLength != nil && *p.MinLength > 0 && length < *p.MinLength {
		issues = append(issues, fmt.Sprintf("Field \"%s\" must be at least %d characters", name, *p.MinLength))
	}
	if p.MaxLength != nil && *p.MaxLength > 0 && length > *p.MaxLength {
		issues = append(issues, fmt.Sprintf("Field \"%s\" must not exceed %d characters", name, *p.MaxLength))
	}

	if p.Pattern != "" {
		// patterns are checked when saved; one that still fails to compile is ignored
		if re, err := regexp.Compile(p.Pattern); err == nil && !re.MatchString(text) {
			issues = append(issues, fmt.Sprintf("Field \"%s\" format is invalid", name))
		}
	}
	return issues
}

func fieldName(f models.Field) string {
	if f.Props.Label != "" {
		return f.Props.Label
	}
	return f.ID
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return n, err == nil
	}
	return 0, false
}

// stringify renders a submitted value the way it is measured and matched.
// Lists are joined with commas.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatNumber(x)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(x, ",")
	}
	return fmt.Sprint(v)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
