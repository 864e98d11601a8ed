package query

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// Columns a rule may name.
const (
	ColumnID               = "id"
	ColumnFullName         = "fullName"
	ColumnEmail            = "email"
	ColumnPhone            = "phone"
	ColumnSubject          = "subject"
	ColumnMessage          = "message"
	ColumnPreferredContact = "preferredContact"
	ColumnDate             = "date"
)

// Columns lists the supported columns.
var Columns = []string{
	ColumnID, ColumnFullName, ColumnEmail, ColumnPhone,
	ColumnSubject, ColumnMessage, ColumnPreferredContact, ColumnDate,
}

// ColumnValue stringifies a ticket column. Unknown columns and unset values
// yield "".
func ColumnValue(t domain.Ticket, column string) string {
	switch column {
	case ColumnID:
		if t.ID == 0 {
			return ""
		}
		return strconv.FormatInt(t.ID, 10)
	case ColumnFullName:
		return t.FullName
	case ColumnEmail:
		return t.Email
	case ColumnPhone:
		return t.Phone
	case ColumnSubject:
		return string(t.Subject)
	case ColumnMessage:
		return t.Message
	case ColumnPreferredContact:
		return string(t.PreferredContact)
	case ColumnDate:
		if t.SubmittedAt.IsZero() {
			return ""
		}
		return t.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return ""
}

// Filter returns the tickets matching every rule, case-insensitively. The
// input is never modified; the result is a fresh slice.
func Filter(tickets []domain.Ticket, rules []FilterRule) []domain.Ticket {
	out := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if matchesAll(t, rules) {
			out = append(out, t)
		}
	}
	return out
}

func matchesAll(t domain.Ticket, rules []FilterRule) bool {
	for _, r := range rules {
		if !matches(t, r) {
			return false
		}
	}
	return true
}

func matches(t domain.Ticket, r FilterRule) bool {
	val := strings.ToLower(ColumnValue(t, r.Column))
	want := strings.ToLower(r.Value)
	switch r.Relation {
	case RelationEquals:
		return val == want
	case RelationContains:
		return strings.Contains(val, want)
	case RelationStarts:
		return strings.HasPrefix(val, want)
	case RelationEnds:
		return strings.HasSuffix(val, want)
	}
	return true
}

// Sort returns a stably sorted copy. Rules form a tie-break chain; a rule is
// skipped for a pair when either side has no value for its column.
//
// Skipping makes the ordering non-transitive once a column has gaps: a ticket
// without an email compares equal to every other ticket on that rule, so it
// can keep two emailed tickets out of order. Sorting [b@x, "", a@x] by email
// returns the list unchanged.
func Sort(tickets []domain.Ticket, rules []SortRule) []domain.Ticket {
	out := slices.Clone(tickets)
	if out == nil {
		out = []domain.Ticket{}
	}
	if len(rules) == 0 {
		return out
	}
	slices.SortStableFunc(out, func(a, b domain.Ticket) int {
		for _, r := range rules {
			c, ok := compareColumn(a, b, r.Column)
			if !ok || c == 0 {
				continue
			}
			if r.Order == OrderDesc {
				return -c
			}
			return c
		}
		return 0
	})
	return out
}

// View applies filters first, then sorting.
func View(tickets []domain.Ticket, q Query) []domain.Ticket {
	return Sort(Filter(tickets, q.Filters), q.Sorts)
}

func compareColumn(a, b domain.Ticket, column string) (int, bool) {
	switch column {
	case ColumnDate:
		if a.SubmittedAt.IsZero() || b.SubmittedAt.IsZero() {
			return 0, false
		}
		return a.SubmittedAt.Compare(b.SubmittedAt), true
	case ColumnID:
		if a.ID == 0 || b.ID == 0 {
			return 0, false
		}
		return cmpInt(a.ID, b.ID), true
	case ColumnPhone:
		pa, pb := digits(a.Phone), digits(b.Phone)
		if pa == "" || pb == "" {
			return 0, false
		}
		return strings.Compare(pa, pb), true
	}
	va, vb := ColumnValue(a, column), ColumnValue(b, column)
	if va == "" || vb == "" {
		return 0, false
	}
	return strings.Compare(strings.ToLower(va), strings.ToLower(vb)), true
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
