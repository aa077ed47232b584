package pagination

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Limits bounds the page size a client may request.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits is used when the server configuration does not override them.
var DefaultLimits = Limits{Default: DefaultLimit, Max: MaxLimit}

func (l Limits) normalized() Limits {
	if l.Default <= 0 {
		l.Default = DefaultLimit
	}
	if l.Max <= 0 {
		l.Max = MaxLimit
	}
	if l.Default > l.Max {
		l.Default = l.Max
	}
	return l
}

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// Parse reads _count and _offset from a query string. A missing _count uses
// the default, a larger one is clamped to the max and _count=0 is kept (the
// caller only wants a total). Non-numeric or negative values are errors.
func Parse(q url.Values, limits Limits) (Params, error) {
	limits = limits.normalized()
	p := Params{Limit: limits.Default}

	if raw := q.Get("_count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Params{}, fmt.Errorf("invalid _count %q", raw)
		}
		p.Limit = n
	}
	if p.Limit > limits.Max {
		p.Limit = limits.Max
	}

	if raw := q.Get("_offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Params{}, fmt.Errorf("invalid _offset %q", raw)
		}
		p.Offset = n
	}
	return p, nil
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Limit > 0 && p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}
