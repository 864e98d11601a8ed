// Package query holds the table view state: filter and sort rules carried in
// the URL query string, and the pure functions that apply them to a ticket
// list.
//
// The query string is the only source of truth for what the table shows.
// A view is restored from it alone, never from widget state.
package query

import (
	"net/url"
	"strings"
)

// Relation is how a filter compares a column with its value.
type Relation string

const (
	RelationEquals   Relation = "equals"
	RelationContains Relation = "contains"
	RelationStarts   Relation = "starts"
	RelationEnds     Relation = "ends"
)

// Valid reports whether r is a known relation.
func (r Relation) Valid() bool {
	switch r {
	case RelationEquals, RelationContains, RelationStarts, RelationEnds:
		return true
	}
	return false
}

// Order is a sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Valid reports whether o is a known order.
func (o Order) Valid() bool {
	return o == OrderAsc || o == OrderDesc
}

// Query parameter names.
const (
	ParamFilters = "filters"
	ParamSortBy  = "sortBy"
)

// FilterRule keeps tickets whose column matches value under relation.
type FilterRule struct {
	Column   string   `json:"column"`
	Relation Relation `json:"relation"`
	Value    string   `json:"value"`
}

// SortRule orders tickets by column.
type SortRule struct {
	Column string `json:"column"`
	Order  Order  `json:"order"`
}

// Query is the full view state of the ticket table.
type Query struct {
	Filters []FilterRule `json:"filters"`
	Sorts   []SortRule   `json:"sortBy"`
}

// Empty reports whether q neither filters nor sorts.
func (q Query) Empty() bool {
	return len(q.Filters) == 0 && len(q.Sorts) == 0
}

// ParseRaw parses a raw query string such as "filters=...&sortBy=...".
func ParseRaw(raw string) (Query, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return Query{}, err
	}
	return Parse(values), nil
}

// Parse extracts filter and sort rules. Malformed segments are dropped.
func Parse(values url.Values) Query {
	return Query{
		Filters: ParseFilters(values.Get(ParamFilters)),
		Sorts:   ParseSorts(values.Get(ParamSortBy)),
	}
}

// ParseFilters parses "col:rel:value,col:rel:value". Values are
// percent-encoded, so a literal comma cannot split a rule, and any further
// colons belong to the value.
func ParseFilters(param string) []FilterRule {
	if param == "" {
		return nil
	}
	var rules []FilterRule
	for _, segment := range strings.Split(param, ",") {
		parts := strings.SplitN(segment, ":", 3)
		if len(parts) != 3 {
			continue
		}
		value, err := url.QueryUnescape(parts[2])
		if err != nil {
			continue
		}
		rule := FilterRule{
			Column:   strings.TrimSpace(parts[0]),
			Relation: Relation(strings.TrimSpace(parts[1])),
			Value:    value,
		}
		if !validFilter(rule) {
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

// ParseSorts parses "col:order,col:order".
func ParseSorts(param string) []SortRule {
	if param == "" {
		return nil
	}
	var rules []SortRule
	for _, segment := range strings.Split(param, ",") {
		column, order, ok := strings.Cut(segment, ":")
		if !ok {
			continue
		}
		rule := SortRule{Column: strings.TrimSpace(column), Order: Order(strings.TrimSpace(order))}
		if !validSort(rule) {
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

// FiltersParam serializes the filter rules, or "" when there are none.
func (q Query) FiltersParam() string {
	parts := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		parts = append(parts, f.Column+":"+string(f.Relation)+":"+url.QueryEscape(f.Value))
	}
	return strings.Join(parts, ",")
}

// SortParam serializes the sort rules, or "" when there are none.
func (q Query) SortParam() string {
	parts := make([]string, 0, len(q.Sorts))
	for _, s := range q.Sorts {
		parts = append(parts, s.Column+":"+string(s.Order))
	}
	return strings.Join(parts, ",")
}

// Apply writes q into values, removing parameters for empty rule sets and
// leaving unrelated parameters alone.
func (q Query) Apply(values url.Values) url.Values {
	out := url.Values{}
	for k, v := range values {
		out[k] = append([]string(nil), v...)
	}
	if p := q.FiltersParam(); p != "" {
		out.Set(ParamFilters, p)
	} else {
		out.Del(ParamFilters)
	}
	if p := q.SortParam(); p != "" {
		out.Set(ParamSortBy, p)
	} else {
		out.Del(ParamSortBy)
	}
	return out
}

// Encode returns the canonical query string for q.
func (q Query) Encode() string {
	return q.Apply(nil).Encode()
}

// WithoutFilters is the filter modal's reset action.
func (q Query) WithoutFilters() Query {
	return Query{Sorts: q.Sorts}
}

// WithoutSort is the sort modal's reset action.
func (q Query) WithoutSort() Query {
	return Query{Filters: q.Filters}
}

// Normalize drops invalid rules, as parsing would.
func (q Query) Normalize() Query {
	var out Query
	for _, f := range q.Filters {
		if validFilter(f) {
			out.Filters = append(out.Filters, f)
		}
	}
	for _, s := range q.Sorts {
		if validSort(s) {
			out.Sorts = append(out.Sorts, s)
		}
	}
	return out
}

func validColumn(c string) bool {
	return c != "" && c == strings.TrimSpace(c) && !strings.ContainsAny(c, ":,")
}

func validFilter(f FilterRule) bool {
	return validColumn(f.Column) && f.Value != "" && f.Relation.Valid()
}

func validSort(s SortRule) bool {
	return validColumn(s.Column) && s.Order.Valid()
}
