package query

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2025, 4, d, 12, 0, 0, 0, time.UTC)
}

func fixture() []domain.Ticket {
	return []domain.Ticket{
		{ID: 1, FullName: "Wanjiru Mwangi", Email: "wanjiru@example.com", Subject: domain.SubjectBilling, Message: "Double charge", PreferredContact: domain.ContactEmail, SubmittedAt: day(3)},
		{ID: 2, FullName: "brian otieno", Phone: "0712 345 678", Subject: domain.SubjectTechnical, Message: "Cannot log in", PreferredContact: domain.ContactPhone, SubmittedAt: day(1)},
		{ID: 3, FullName: "Achieng Odhiambo", Email: "achieng@mail.co.ke", Phone: "+254112345678", Subject: domain.SubjectBilling, Message: "Refund request", PreferredContact: domain.ContactPhone, SubmittedAt: day(2)},
		{ID: 4, FullName: "Brian Kiprop", Email: "kiprop@example.com", Subject: domain.SubjectGeneral, Message: "Opening hours?", PreferredContact: domain.ContactEmail, SubmittedAt: day(2)},
	}
}

func ids(tickets []domain.Ticket) []int64 {
	out := make([]int64, len(tickets))
	for i, t := range tickets {
		out[i] = t.ID
	}
	return out
}

func TestEmptyRulesAreIdentity(t *testing.T) {
	in := fixture()
	if diff := cmp.Diff(in, Filter(in, nil)); diff != "" {
		t.Fatalf("Filter(nil) changed list:\n%s", diff)
	}
	if diff := cmp.Diff(in, Sort(in, nil)); diff != "" {
		t.Fatalf("Sort(nil) changed list:\n%s", diff)
	}
	if diff := cmp.Diff(in, View(in, Query{})); diff != "" {
		t.Fatalf("View(empty) changed list:\n%s", diff)
	}
}

func TestFilterRelations(t *testing.T) {
	tests := []struct {
		name  string
		rules []FilterRule
		want  []int64
	}{
		{name: "equals ignores case", rules: []FilterRule{{Column: "subject", Relation: RelationEquals, Value: "billing"}}, want: []int64{1, 3}},
		{name: "contains", rules: []FilterRule{{Column: "fullName", Relation: RelationContains, Value: "BRIAN"}}, want: []int64{2, 4}},
		{name: "starts", rules: []FilterRule{{Column: "email", Relation: RelationStarts, Value: "ach"}}, want: []int64{3}},
		{name: "ends", rules: []FilterRule{{Column: "email", Relation: RelationEnds, Value: "example.com"}}, want: []int64{1, 4}},
		{name: "date prefix", rules: []FilterRule{{Column: "date", Relation: RelationStarts, Value: "2025-04-02"}}, want: []int64{3, 4}},
		{name: "id equals", rules: []FilterRule{{Column: "id", Relation: RelationEquals, Value: "2"}}, want: []int64{2}},
		{name: "and across rules", rules: []FilterRule{
			{Column: "subject", Relation: RelationEquals, Value: "Billing"},
			{Column: "preferredContact", Relation: RelationEquals, Value: "phone"},
		}, want: []int64{3}},
		{name: "missing field never contains text", rules: []FilterRule{{Column: "email", Relation: RelationContains, Value: "@"}}, want: []int64{1, 3, 4}},
		{name: "no match", rules: []FilterRule{{Column: "message", Relation: RelationContains, Value: "printer"}}, want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(fixture(), tt.rules))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Filter() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSortByDate(t *testing.T) {
	asc := Sort(fixture(), []SortRule{{Column: "date", Order: OrderAsc}})
	for i := 1; i < len(asc); i++ {
		if asc[i].SubmittedAt.Before(asc[i-1].SubmittedAt) {
			t.Fatalf("asc order broken at %d: %v", i, ids(asc))
		}
	}
	desc := Sort(fixture(), []SortRule{{Column: "date", Order: OrderDesc}})
	for i := 1; i < len(desc); i++ {
		if desc[i].SubmittedAt.After(desc[i-1].SubmittedAt) {
			t.Fatalf("desc order broken at %d: %v", i, ids(desc))
		}
	}
}

func TestSortTieBreak(t *testing.T) {
	got := Sort(fixture(), []SortRule{
		{Column: "date", Order: OrderAsc},
		{Column: "fullName", Order: OrderAsc},
	})
	// tickets 3 and 4 share a date; the name rule puts Achieng before Brian.
	if diff := cmp.Diff([]int64{2, 3, 4, 1}, ids(got)); diff != "" {
		t.Fatalf("Sort() mismatch (-want +got):\n%s", diff)
	}

	got = Sort(fixture(), []SortRule{
		{Column: "date", Order: OrderAsc},
		{Column: "fullName", Order: OrderDesc},
	})
	if diff := cmp.Diff([]int64{2, 4, 3, 1}, ids(got)); diff != "" {
		t.Fatalf("Sort() mismatch (-want +got):\n%s", diff)
	}
}

func TestSortCaseInsensitive(t *testing.T) {
	got := Sort(fixture(), []SortRule{{Column: "fullName", Order: OrderAsc}})
	if diff := cmp.Diff([]int64{3, 2, 4, 1}, ids(got)); diff != "" {
		t.Fatalf("Sort() mismatch (-want +got):\n%s", diff)
	}
}

func TestSortSkipsAbsentValues(t *testing.T) {
	// Ticket 2 has no email, so the email rule cannot order it; the id rule decides.
	in := []domain.Ticket{
		{ID: 5, Email: "b@example.com"},
		{ID: 2},
		{ID: 9, Email: "a@example.com"},
	}
	got := Sort(in, []SortRule{{Column: "email", Order: OrderAsc}, {Column: "id", Order: OrderAsc}})
	if diff := cmp.Diff([]int64{2, 9, 5}, ids(got)); diff != "" {
		t.Fatalf("Sort() mismatch (-want +got):\n%s", diff)
	}
}

func TestSortAbsentValueCanBlockReordering(t *testing.T) {
	// The blank email compares equal to both neighbours, so the stable sort
	// never moves b past it.
	in := []domain.Ticket{
		{ID: 1, Email: "b@x.io"},
		{ID: 2},
		{ID: 3, Email: "a@x.io"},
	}
	got := Sort(in, []SortRule{{Column: "email", Order: OrderAsc}})
	if diff := cmp.Diff([]int64{1, 2, 3}, ids(got)); diff != "" {
		t.Fatalf("Sort() mismatch (-want +got):\n%s", diff)
	}
}

func TestSortPhoneComparesDigits(t *testing.T) {
	in := []domain.Ticket{
		{ID: 1, Phone: "0798 000 000"},
		{ID: 2, Phone: "0711-000-000"},
	}
	got := Sort(in, []SortRule{{Column: "phone", Order: OrderAsc}})
	if diff := cmp.Diff([]int64{2, 1}, ids(got)); diff != "" {
		t.Fatalf("Sort() mismatch (-want +got):\n%s", diff)
	}
}

func TestViewDoesNotMutateInput(t *testing.T) {
	in := fixture()
	before := fixture()
	_ = View(in, Query{
		Filters: []FilterRule{{Column: "subject", Relation: RelationEquals, Value: "Billing"}},
		Sorts:   []SortRule{{Column: "date", Order: OrderDesc}},
	})
	if diff := cmp.Diff(before, in); diff != "" {
		t.Fatalf("View() mutated its input:\n%s", diff)
	}
}

func TestViewFiltersBeforeSorting(t *testing.T) {
	got := View(fixture(), Query{
		Filters: []FilterRule{{Column: "subject", Relation: RelationEquals, Value: "Billing"}},
		Sorts:   []SortRule{{Column: "date", Order: OrderDesc}},
	})
	if diff := cmp.Diff([]int64{1, 3}, ids(got)); diff != "" {
		t.Fatalf("View() mismatch (-want +got):\n%s", diff)
	}
}
