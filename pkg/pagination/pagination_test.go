package pagination

import (
	"net/url"
	"testing"
)

func TestParse_Defaults(t *testing.T) {
	p, err := Parse(url.Values{}, DefaultLimits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != DefaultLimit {
		t.Errorf("expected limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestParse_CustomValues(t *testing.T) {
	p, err := Parse(url.Values{"_count": {"5"}, "_offset": {"10"}}, DefaultLimits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != 5 || p.Offset != 10 {
		t.Errorf("expected 5/10, got %d/%d", p.Limit, p.Offset)
	}
}

func TestParse_ClampsToMax(t *testing.T) {
	p, _ := Parse(url.Values{"_count": {"500"}}, Limits{Default: 10, Max: 50})
	if p.Limit != 50 {
		t.Errorf("expected clamp to 50, got %d", p.Limit)
	}
}

func TestParse_ZeroCount(t *testing.T) {
	p, err := Parse(url.Values{"_count": {"0"}}, DefaultLimits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != 0 {
		t.Errorf("expected limit 0, got %d", p.Limit)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, q := range []url.Values{
		{"_count": {"abc"}},
		{"_count": {"-1"}},
		{"_offset": {"x"}},
		{"_offset": {"-5"}},
	} {
		if _, err := Parse(q, DefaultLimits); err == nil {
			t.Errorf("expected error for %v", q)
		}
	}
}

func TestLimits_Normalized(t *testing.T) {
	l := Limits{Default: 200, Max: 0}.normalized()
	if l.Max != MaxLimit || l.Default != MaxLimit {
		t.Errorf("unexpected normalized limits %+v", l)
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 5}
	if !p.HasNext(20) {
		t.Error("expected next page")
	}
	if p.HasNext(15) {
		t.Error("expected no next page")
	}
	if !p.HasPrevious() {
		t.Error("expected previous page")
	}
	if p.NextOffset() != 15 {
		t.Errorf("next offset = %d", p.NextOffset())
	}
	if p.PreviousOffset() != 0 {
		t.Errorf("previous offset = %d", p.PreviousOffset())
	}
	if (Params{Limit: 0}).HasNext(10) {
		t.Error("zero limit never has a next page")
	}
}
