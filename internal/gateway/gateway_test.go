package gateway

import (
	"errors"
	"net/url"
	"testing"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/ids"
)

var serviceFields = []string{
	"Title", "MachineName", "Restricted", "Association", "Association__Department",
}

func parse(t *testing.T, query string) ([]directory.Filter, bool) {
	t.Helper()
	values, err := url.ParseQuery(query)
	if err != nil {
		t.Fatalf("parse query %q: %v", query, err)
	}
	return ParseFilters(values, serviceFields)
}

func TestParseFiltersSubstringMatch(t *testing.T) {
	filters, ok := parse(t, "title=Passport")
	if !ok || len(filters) != 1 {
		t.Fatalf("got %v ok=%v", filters, ok)
	}
	if filters[0].Field != "Title" || filters[0].Values[0] != "Passport" {
		t.Fatalf("filter = %+v", filters[0])
	}

	// A key that embeds the field name still matches.
	filters, ok = parse(t, "filter_by_machinename=passport_renewal")
	if !ok || len(filters) != 1 || filters[0].Field != "MachineName" {
		t.Fatalf("embedded key: %v ok=%v", filters, ok)
	}
}

func TestParseFiltersLongestFieldWins(t *testing.T) {
	filters, ok := parse(t, "association__department=D1")
	if !ok || len(filters) != 1 {
		t.Fatalf("got %v ok=%v", filters, ok)
	}
	if filters[0].Field != "Association__Department" {
		t.Fatalf("matched %q, want the longer traversal field", filters[0].Field)
	}
}

func TestParseFiltersUnknownKeyIgnored(t *testing.T) {
	filters, ok := parse(t, "nonsense=1&title=Passport")
	if !ok || len(filters) != 1 || filters[0].Field != "Title" {
		t.Fatalf("got %v ok=%v", filters, ok)
	}
}

func TestParseFiltersInList(t *testing.T) {
	filters, ok := parse(t, "association__in=[a1,a2,a3]")
	if !ok || len(filters) != 1 {
		t.Fatalf("got %v ok=%v", filters, ok)
	}
	if filters[0].Field != "Association" || len(filters[0].Values) != 3 {
		t.Fatalf("filter = %+v", filters[0])
	}
}

func TestParseFiltersMalformedPoisonsQuery(t *testing.T) {
	for _, query := range []string{
		"association__in=a1,a2",
		"association__in=[]",
		"association__in=[a1,,a2]",
		"title=",
		"title=%20",
	} {
		if _, ok := parse(t, query); ok {
			t.Fatalf("query %q accepted, want poisoned", query)
		}
	}
}

func TestCheckID(t *testing.T) {
	if err := CheckID("not-an-id"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("malformed id: got %v, want ErrNotFound", err)
	}
	if err := CheckID(ids.New()); err != nil {
		t.Fatalf("well-formed id: %v", err)
	}
}
