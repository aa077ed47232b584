package fhir

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// SearchParamType defines the FHIR search parameter type.
type SearchParamType int

const (
	SearchParamToken     SearchParamType = iota // Token: status, code, category (exact match or system|code)
	SearchParamDate                             // Date: supports prefixes (gt, lt, ge, le, eq, etc.)
	SearchParamString                           // String: case-insensitive prefix match, supports :exact, :contains
	SearchParamReference                        // Reference: "ResourceType/id" or "id", resolved through fhir_id
	SearchParamNumber                           // Number: supports prefixes (gt, lt, ge, le, eq, etc.)
	SearchParamQuantity                         // Quantity: number[|system|code] on a value column
	SearchParamURI                              // URI: exact match
	SearchParamBoolean                          // Boolean: true or false
)

// String returns the FHIR search parameter type code.
func (t SearchParamType) String() string {
	switch t {
	case SearchParamToken:
		return "token"
	case SearchParamDate:
		return "date"
	case SearchParamString:
		return "string"
	case SearchParamReference:
		return "reference"
	case SearchParamNumber:
		return "number"
	case SearchParamQuantity:
		return "quantity"
	case SearchParamURI:
		return "uri"
	case SearchParamBoolean:
		return "token"
	default:
		return "special"
	}
}

// SearchParamConfig maps a FHIR search parameter to its database representation.
type SearchParamConfig struct {
	Type        SearchParamType
	Column      string   // Primary DB column (code column for tokens, value column for quantities)
	SysColumn   string   // System column for tokens, unit column for quantities
	Columns     []string // String params matching any of several columns (e.g. name -> family, given)
	TargetTable string   // Referenced table for reference params
}

func (c SearchParamConfig) columns() []string {
	if len(c.Columns) > 0 {
		return c.Columns
	}
	return []string{c.Column}
}

// WithCommonParams adds _id and _lastUpdated to a resource's parameter map.
func WithCommonParams(params map[string]SearchParamConfig) map[string]SearchParamConfig {
	out := make(map[string]SearchParamConfig, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	out["_id"] = SearchParamConfig{Type: SearchParamToken, Column: "fhir_id"}
	out["_lastUpdated"] = SearchParamConfig{Type: SearchParamDate, Column: "updated_at"}
	return out
}

// SearchQuery builds SQL WHERE clauses from FHIR search parameters.
// Voided rows are always excluded.
type SearchQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewSearchQuery creates a new SearchQuery for the given table and columns.
func NewSearchQuery(table, cols string) *SearchQuery {
	return &SearchQuery{
		table: table,
		cols:  cols,
		where: " AND voided = false",
		idx:   1,
	}
}

// Idx returns the next available parameter index.
func (q *SearchQuery) Idx() int { return q.idx }

// Add appends a raw WHERE clause fragment (without leading "AND").
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// ApplyParam applies one occurrence of a search parameter. value may hold
// several comma separated alternatives, which are ORed.
func (q *SearchQuery) ApplyParam(config SearchParamConfig, modifier SearchModifier, value string) error {
	if modifier == ModifierMissing {
		return q.applyMissing(config, value)
	}
	if err := checkModifier(config, modifier); err != nil {
		return err
	}

	var clauses []string
	var args []interface{}
	idx := q.idx
	for _, v := range SplitOrValues(value) {
		if v == "" {
			return Invalidf("empty search value")
		}
		clause, a, next, err := paramClause(config, modifier, v, idx)
		if err != nil {
			return err
		}
		clauses = append(clauses, clause)
		args = append(args, a...)
		idx = next
	}

	clause := clauses[0]
	if len(clauses) > 1 {
		clause = "(" + strings.Join(clauses, " OR ") + ")"
	}
	if modifier == ModifierNot {
		col := config.columns()[0]
		clause = fmt.Sprintf("(%s IS NULL OR NOT %s)", col, clause)
	}
	q.Add(clause, args...)
	return nil
}

func paramClause(config SearchParamConfig, modifier SearchModifier, value string, idx int) (string, []interface{}, int, error) {
	switch config.Type {
	case SearchParamDate:
		return DateSearchClause(config.Column, value, idx)
	case SearchParamToken:
		clause, args, next := TokenSearchClause(config.SysColumn, config.Column, value, idx)
		return clause, args, next, nil
	case SearchParamString:
		clause, args, next := StringSearchClause(config.columns(), value, modifier, idx)
		return clause, args, next, nil
	case SearchParamReference:
		if modifier != "" && modifier != ModifierNot {
			value = string(modifier) + "/" + value
		}
		return ReferenceSearchClause(config.Column, config.TargetTable, value, idx)
	case SearchParamNumber:
		return NumberSearchClause(config.Column, value, idx)
	case SearchParamQuantity:
		return QuantitySearchClause(config.Column, config.SysColumn, value, idx)
	case SearchParamBoolean:
		return BooleanSearchClause(config.Column, value, idx)
	default:
		return fmt.Sprintf("%s = $%d", config.Column, idx), []interface{}{value}, idx + 1, nil
	}
}

// checkModifier rejects modifiers that do not apply to the parameter type.
// Reference parameters accept a capitalized resource type as modifier.
func checkModifier(config SearchParamConfig, modifier SearchModifier) error {
	if modifier == "" {
		return nil
	}
	switch config.Type {
	case SearchParamString:
		if modifier == ModifierExact || modifier == ModifierContains {
			return nil
		}
	case SearchParamToken:
		if modifier == ModifierNot {
			return nil
		}
	case SearchParamReference:
		m := string(modifier)
		if m[0] >= 'A' && m[0] <= 'Z' && strings.EqualFold(m, config.TargetTable) {
			return nil
		}
	}
	return Invalidf("modifier :%s is not supported here", modifier)
}

func (q *SearchQuery) applyMissing(config SearchParamConfig, value string) error {
	col := config.columns()[0]
	switch value {
	case "true":
		q.Add(col + " IS NULL")
	case "false":
		q.Add(col + " IS NOT NULL")
	default:
		return Invalidf(":missing expects true or false, got %q", value)
	}
	return nil
}

// ApplyParams applies every search parameter in params. Repeated keys are
// ANDed. Chained names ("subject.name") are resolved through chains, which
// may be nil. Unknown parameters are an error.
func (q *SearchQuery) ApplyParams(params url.Values, configs map[string]SearchParamConfig, chains *ChainRegistry) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range params[name] {
			if strings.Contains(name, ".") {
				if chains == nil {
					return Invalidf("chained search is not supported for parameter %q", name)
				}
				if err := chains.Apply(q, name, value); err != nil {
					return err
				}
				continue
			}

			base, modifier := ParseParamModifier(name)
			config, ok := configs[base]
			if !ok {
				return Invalidf("unknown search parameter %q", base)
			}
			if err := q.ApplyParam(config, modifier, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *SearchQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// CountSQL returns the count query SQL.
func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

// CountArgs returns the arguments for the count query.
func (q *SearchQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *SearchQuery) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// AllSQL returns the data query without paging, for callers that post-process
// every match.
func (q *SearchQuery) AllSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql
}

// DataArgs returns the arguments for the data query (search args + limit + offset).
func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

// ApplySort processes the _sort parameter and sets ORDER BY using config
// column mappings, falling back to defaultOrder when _sort is empty. An
// unknown sort parameter is an error. id is appended as a tiebreaker so
// pages are stable.
func (q *SearchQuery) ApplySort(sortParam, defaultOrder string, configs map[string]SearchParamConfig) error {
	specs := ParseSort(sortParam)
	if len(specs) == 0 {
		q.orderBy = defaultOrder
		return nil
	}

	parts := make([]string, 0, len(specs)+1)
	for _, spec := range specs {
		config, ok := configs[spec.Field]
		if !ok {
			return Invalidf("unknown sort parameter %q", spec.Field)
		}
		if config.Type == SearchParamReference {
			return Invalidf("cannot sort on reference parameter %q", spec.Field)
		}
		col := config.columns()[0]
		if spec.Descending {
			parts = append(parts, col+" DESC NULLS LAST")
		} else {
			parts = append(parts, col+" ASC NULLS LAST")
		}
	}
	q.orderBy = strings.Join(append(parts, "id ASC"), ", ")
	return nil
}
