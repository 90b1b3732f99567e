package models

import "testing"

func TestLeadStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to LeadStatus
		want     bool
	}{
		{LeadStatusNew, LeadStatusAllocated, true},
		{LeadStatusNew, LeadStatusUnlocked, true},
		{LeadStatusAllocated, LeadStatusNew, false},
		{LeadStatusUnlocked, LeadStatusUnlocked, false},
		{LeadStatusUnlocked, LeadStatusContacted, true},
		{LeadStatusContacted, LeadStatusConverted, true},
		{LeadStatusContacted, LeadStatusClosed, true},
		{LeadStatusConverted, LeadStatusClosed, false},
		{LeadStatusClosed, LeadStatusConverted, false},
		{LeadStatus("bogus"), LeadStatusClosed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestFiltersSpecificity(t *testing.T) {
	if n := (Filters{}).Specificity(); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
	f := Filters{City: "Pune", Brand: "Honda", StartDate: "2026-01-01", EndDate: "2026-01-31"}
	if n := f.Specificity(); n != 3 {
		t.Fatalf("expected date bounds to count once, got %d", n)
	}
}
