package fhir

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SearchPrefix represents a FHIR search prefix for ordered values.
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixGt SearchPrefix = "gt"
	PrefixLt SearchPrefix = "lt"
	PrefixGe SearchPrefix = "ge"
	PrefixLe SearchPrefix = "le"
	PrefixSa SearchPrefix = "sa" // starts after
	PrefixEb SearchPrefix = "eb" // ends before
	PrefixAp SearchPrefix = "ap" // approximately
)

// SearchModifier represents a FHIR search modifier.
type SearchModifier string

const (
	ModifierExact    SearchModifier = "exact"
	ModifierContains SearchModifier = "contains"
	ModifierNot      SearchModifier = "not"
	ModifierMissing  SearchModifier = "missing"
)

// ParsedSearch holds a parsed search parameter value with its prefix.
type ParsedSearch struct {
	Prefix SearchPrefix
	Value  string
}

// ParseSearchValue extracts the prefix from a FHIR search value.
// Examples: "gt2023-01-01" -> (gt, "2023-01-01"), "100" -> (eq, "100")
func ParseSearchValue(raw string) ParsedSearch {
	if len(raw) >= 2 {
		prefix := SearchPrefix(strings.ToLower(raw[:2]))
		switch prefix {
		case PrefixEq, PrefixNe, PrefixGt, PrefixLt, PrefixGe, PrefixLe, PrefixSa, PrefixEb, PrefixAp:
			return ParsedSearch{Prefix: prefix, Value: raw[2:]}
		}
	}
	return ParsedSearch{Prefix: PrefixEq, Value: raw}
}

// ParseParamModifier splits a parameter name from its modifier.
// Examples: "name:exact" -> ("name", "exact"), "code" -> ("code", "")
func ParseParamModifier(paramName string) (string, SearchModifier) {
	parts := strings.SplitN(paramName, ":", 2)
	if len(parts) == 2 {
		return parts[0], SearchModifier(parts[1])
	}
	return parts[0], ""
}

// SplitOrValues splits a parameter value on commas not escaped with a
// backslash. Each part is one alternative of a logical OR.
func SplitOrValues(value string) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch == '\\' && i+1 < len(value) {
			cur.WriteByte(value[i+1])
			i++
			continue
		}
		if ch == ',' {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(ch)
	}
	return append(parts, cur.String())
}

// DateSearchClause generates SQL for a date search parameter with prefix
// support. The value's precision defines the matched range: "2024" covers the
// whole year, "2024-03-01" the whole day.
func DateSearchClause(column string, value string, argIdx int) (string, []interface{}, int, error) {
	parsed := ParseSearchValue(value)

	start, end, err := dateRange(parsed.Value)
	if err != nil {
		return "", nil, argIdx, Invalidf("invalid date %q", parsed.Value)
	}

	switch parsed.Prefix {
	case PrefixGt, PrefixSa:
		return fmt.Sprintf("%s >= $%d", column, argIdx), []interface{}{end}, argIdx + 1, nil
	case PrefixLt, PrefixEb:
		return fmt.Sprintf("%s < $%d", column, argIdx), []interface{}{start}, argIdx + 1, nil
	case PrefixGe:
		return fmt.Sprintf("%s >= $%d", column, argIdx), []interface{}{start}, argIdx + 1, nil
	case PrefixLe:
		return fmt.Sprintf("%s < $%d", column, argIdx), []interface{}{end}, argIdx + 1, nil
	case PrefixNe:
		clause := fmt.Sprintf("(%s < $%d OR %s >= $%d)", column, argIdx, column, argIdx+1)
		return clause, []interface{}{start, end}, argIdx + 2, nil
	case PrefixAp:
		oneDay := 24 * time.Hour
		clause := fmt.Sprintf("(%s >= $%d AND %s < $%d)", column, argIdx, column, argIdx+1)
		return clause, []interface{}{start.Add(-oneDay), end.Add(oneDay)}, argIdx + 2, nil
	default:
		clause := fmt.Sprintf("(%s >= $%d AND %s < $%d)", column, argIdx, column, argIdx+1)
		return clause, []interface{}{start, end}, argIdx + 2, nil
	}
}

// NumberSearchClause generates SQL for a number search parameter with prefix support.
func NumberSearchClause(column string, value string, argIdx int) (string, []interface{}, int, error) {
	parsed := ParseSearchValue(value)
	n, err := strconv.ParseFloat(parsed.Value, 64)
	if err != nil {
		return "", nil, argIdx, Invalidf("invalid number %q", parsed.Value)
	}

	op := "="
	switch parsed.Prefix {
	case PrefixGt, PrefixSa:
		op = ">"
	case PrefixLt, PrefixEb:
		op = "<"
	case PrefixGe:
		op = ">="
	case PrefixLe:
		op = "<="
	case PrefixNe:
		op = "<>"
	case PrefixAp:
		delta := n * 0.1
		if delta < 0 {
			delta = -delta
		}
		clause := fmt.Sprintf("(%s >= $%d AND %s <= $%d)", column, argIdx, column, argIdx+1)
		return clause, []interface{}{n - delta, n + delta}, argIdx + 2, nil
	}
	return fmt.Sprintf("%s %s $%d", column, op, argIdx), []interface{}{n}, argIdx + 1, nil
}

// QuantitySearchClause handles "[prefix]number|system|code". When a code is
// given and unitCol is set, the unit must match as well.
func QuantitySearchClause(valueCol, unitCol string, value string, argIdx int) (string, []interface{}, int, error) {
	parts := strings.SplitN(value, "|", 3)
	clause, args, next, err := NumberSearchClause(valueCol, parts[0], argIdx)
	if err != nil {
		return "", nil, argIdx, err
	}
	if len(parts) == 3 && parts[2] != "" && unitCol != "" {
		clause = fmt.Sprintf("(%s AND %s = $%d)", clause, unitCol, next)
		args = append(args, parts[2])
		next++
	}
	return clause, args, next, nil
}

// TokenSearchClause handles token search parameters in the format "system|code", "|code", "system|", or just "code".
func TokenSearchClause(systemCol, codeCol string, value string, argIdx int) (string, []interface{}, int) {
	if strings.Contains(value, "|") {
		parts := strings.SplitN(value, "|", 2)
		system, code := parts[0], parts[1]

		switch {
		case systemCol == "":
			return fmt.Sprintf("%s = $%d", codeCol, argIdx), []interface{}{code}, argIdx + 1
		case system != "" && code != "":
			clause := fmt.Sprintf("(%s = $%d AND %s = $%d)", systemCol, argIdx, codeCol, argIdx+1)
			return clause, []interface{}{system, code}, argIdx + 2
		case system != "":
			return fmt.Sprintf("%s = $%d", systemCol, argIdx), []interface{}{system}, argIdx + 1
		default:
			clause := fmt.Sprintf("(%s IS NULL OR %s = '') AND %s = $%d", systemCol, systemCol, codeCol, argIdx)
			return "(" + clause + ")", []interface{}{code}, argIdx + 1
		}
	}
	return fmt.Sprintf("%s = $%d", codeCol, argIdx), []interface{}{value}, argIdx + 1
}

// StringSearchClause handles string search parameters with modifier support.
// The default is a case-insensitive prefix match. Multiple columns are ORed
// and share one bind argument.
func StringSearchClause(columns []string, value string, modifier SearchModifier, argIdx int) (string, []interface{}, int) {
	op, arg := "ILIKE", escapeLike(value)+"%"
	switch modifier {
	case ModifierExact:
		op, arg = "=", value
	case ModifierContains:
		arg = "%" + escapeLike(value) + "%"
	}

	clauses := make([]string, len(columns))
	for i, col := range columns {
		clauses[i] = fmt.Sprintf("%s %s $%d", col, op, argIdx)
	}
	if len(clauses) == 1 {
		return clauses[0], []interface{}{arg}, argIdx + 1
	}
	return "(" + strings.Join(clauses, " OR ") + ")", []interface{}{arg}, argIdx + 1
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ReferenceSearchClause parses a FHIR reference value ("Patient/123",
// an absolute URL or a bare id) and resolves it through the target table's
// fhir_id column. A type that does not match the target table is invalid.
func ReferenceSearchClause(column, targetTable string, value string, argIdx int) (string, []interface{}, int, error) {
	resourceType, id := ParseReference(value)
	if id == "" {
		return "", nil, argIdx, Invalidf("empty reference")
	}
	if resourceType != "" && !strings.EqualFold(resourceType, targetTable) {
		return "", nil, argIdx, Invalidf("reference %q must point to a %s", value, targetTable)
	}
	clause := fmt.Sprintf("%s IN (SELECT id FROM %s WHERE fhir_id = $%d)", column, targetTable, argIdx)
	return clause, []interface{}{id}, argIdx + 1, nil
}

// BooleanSearchClause matches "true" or "false".
func BooleanSearchClause(column, value string, argIdx int) (string, []interface{}, int, error) {
	b, err := strconv.ParseBool(value)
	if err != nil || (value != "true" && value != "false") {
		return "", nil, argIdx, Invalidf("invalid boolean %q", value)
	}
	return fmt.Sprintf("%s = $%d", column, argIdx), []interface{}{b}, argIdx + 1, nil
}

// dateRange parses a FHIR date, dateTime or instant and returns the half-open
// interval [start, end) covered by its precision.
func dateRange(s string) (time.Time, time.Time, error) {
	layouts := []struct {
		layout string
		next   func(time.Time) time.Time
	}{
		{time.RFC3339Nano, func(t time.Time) time.Time { return t.Add(time.Second) }},
		{"2006-01-02T15:04:05", func(t time.Time) time.Time { return t.Add(time.Second) }},
		{"2006-01-02T15:04", func(t time.Time) time.Time { return t.Add(time.Minute) }},
		{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
		{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
		{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
	}
	for _, l := range layouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			if l.layout == time.RFC3339Nano && t.Nanosecond() != 0 {
				return t, t.Add(time.Millisecond), nil
			}
			return t, l.next(t), nil
		}
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

// ParseDateTime parses a FHIR dateTime at any precision, returning the start
// of the covered interval.
func ParseDateTime(s string) (time.Time, error) {
	start, _, err := dateRange(s)
	return start, err
}
