package fhir

import (
	"net/url"
	"sort"
	"strconv"
	"time"
)

// LastNParams holds the parameters of Observation/$lastn and
// Observation/$lastn-encounters.
type LastNParams struct {
	Max     int        // observations (or encounters) kept per group, default 1
	Filters url.Values // patient, subject, category and code filters
}

var lastNFilters = map[string]bool{"patient": true, "subject": true, "category": true, "code": true}

// ParseLastNParams validates max and the filters. requirePatient is set for
// $lastn-encounters, which is only defined per patient.
func ParseLastNParams(query url.Values, requirePatient bool) (LastNParams, error) {
	params := LastNParams{Max: 1, Filters: url.Values{}}

	if raw := query.Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return LastNParams{}, Invalidf("max must be a positive integer, got %q", raw)
		}
		params.Max = n
	}

	for name, values := range query {
		if name == "max" || controlParams[name] {
			continue
		}
		base, _ := ParseParamModifier(name)
		if !lastNFilters[base] {
			return LastNParams{}, Invalidf("parameter %q is not supported by $lastn", name)
		}
		params.Filters[name] = values
	}

	if requirePatient && params.Filters.Get("patient") == "" && params.Filters.Get("subject") == "" {
		return LastNParams{}, Invalidf("patient or subject is required")
	}
	return params, nil
}

// LastNCandidate is an observation considered by $lastn together with the
// keys it is grouped and ordered by.
type LastNCandidate struct {
	Patient        string
	Code           string // "system|code"
	Effective      *time.Time
	Encounter      string
	EncounterStart *time.Time
	Resource       DomainResource
}

// SelectLastN groups candidates by patient and code and keeps, per group,
// every observation whose effective time is among the max most recent
// distinct effective times. Observations at the same instant are all kept.
// Candidates without an effective time are dropped. The result is ordered
// by patient, code and effective time descending.
func SelectLastN(candidates []LastNCandidate, max int) []LastNCandidate {
	if max < 1 {
		max = 1
	}

	sorted := make([]LastNCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Effective != nil {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Patient != b.Patient {
			return a.Patient < b.Patient
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Effective.After(*b.Effective)
	})

	var out []LastNCandidate
	var distinct int
	var last time.Time
	for i, c := range sorted {
		if i == 0 || c.Patient != sorted[i-1].Patient || c.Code != sorted[i-1].Code {
			distinct, last = 0, time.Time{}
		}
		if distinct == 0 || !c.Effective.Equal(last) {
			distinct++
			last = *c.Effective
		}
		if distinct <= max {
			out = append(out, c)
		}
	}
	return out
}

// SelectLastNEncounters keeps, per patient, the observations belonging to
// the max most recent distinct encounters (by encounter start). Candidates
// without an encounter are dropped; encounters without a start sort last.
// The result is ordered by patient, encounter start descending, code and
// effective time descending.
func SelectLastNEncounters(candidates []LastNCandidate, max int) []LastNCandidate {
	if max < 1 {
		max = 1
	}

	type enc struct {
		id    string
		start *time.Time
	}
	perPatient := make(map[string][]enc)
	seen := make(map[string]bool)
	for _, c := range candidates {
		if c.Encounter == "" {
			continue
		}
		key := c.Patient + "\x00" + c.Encounter
		if !seen[key] {
			seen[key] = true
			perPatient[c.Patient] = append(perPatient[c.Patient], enc{id: c.Encounter, start: c.EncounterStart})
		}
	}

	keep := make(map[string]bool)
	for patient, encs := range perPatient {
		sort.SliceStable(encs, func(i, j int) bool {
			return timeAfter(encs[i].start, encs[j].start) ||
				(timeEqual(encs[i].start, encs[j].start) && encs[i].id < encs[j].id)
		})
		for i := 0; i < len(encs) && i < max; i++ {
			keep[patient+"\x00"+encs[i].id] = true
		}
	}

	var out []LastNCandidate
	for _, c := range candidates {
		if keep[c.Patient+"\x00"+c.Encounter] {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Patient != b.Patient {
			return a.Patient < b.Patient
		}
		if a.Encounter != b.Encounter {
			if !timeEqual(a.EncounterStart, b.EncounterStart) {
				return timeAfter(a.EncounterStart, b.EncounterStart)
			}
			return a.Encounter < b.Encounter
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return timeAfter(a.Effective, b.Effective)
	})
	return out
}

// timeAfter orders nil after every time.
func timeAfter(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
