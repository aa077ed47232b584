package fhir

import (
	"reflect"
	"testing"
)

func TestParseSort(t *testing.T) {
	got := ParseSort("-date, status,,-")
	want := []SortSpec{{Field: "date", Descending: true}, {Field: "status"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseSort = %+v, want %+v", got, want)
	}
	if ParseSort("") != nil {
		t.Error("expected nil for empty sort")
	}
}
