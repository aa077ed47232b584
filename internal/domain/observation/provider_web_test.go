package observation

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"

	"github.com/emr/fhir2/internal/fhirtest"
	"github.com/emr/fhir2/internal/platform/fhir"
)

type observationProviderSuite struct {
	fhirtest.ProviderSuite
	patient string
}

func TestObservationProvider(t *testing.T) {
	suite.Run(t, new(observationProviderSuite))
}

func (s *observationProviderSuite) SetupTest() {
	s.Mount(func(reg *fhir.Registry, g *echo.Group) {
		NewHandler(NewService(newMockRepo(), s.Versions, nil)).RegisterRoutes(reg, g)
	})
	s.patient = uuid.NewString()
}

func (s *observationProviderSuite) TestCrudAndSearch() {
	id := s.Create("Observation", sampleObservation(s.patient, "8867-4", "2024-03-01T08:00:00Z", 72))

	rec := s.Get("/Observation/" + id)
	s.RequireStatus(rec, http.StatusOK)
	res := s.ReadResource(rec)
	s.Equal("2024-03-01T08:00:00Z", res["effectiveDateTime"])

	rec = s.Get("/Observation?patient=Patient/" + s.patient + "&code=8867-4")
	s.RequireStatus(rec, http.StatusOK)
	s.Equal([]string{id}, s.EntryIDs(s.ReadBundle(rec)))

	rec = s.Get("/Observation?patient=" + s.patient + "&_summary=count")
	s.RequireStatus(rec, http.StatusOK)
	b := s.ReadBundle(rec)
	s.Equal(1, *b.Total)
	s.Empty(b.Entry)
}

// checkLastN verifies that each (patient, code) group is ordered by effective
// time descending and spans at most max distinct times.
func (s *observationProviderSuite) checkLastN(resources []map[string]interface{}, max int) {
	distinct := map[string]map[string]bool{}
	var prevKey, prevTime string
	for _, r := range resources {
		subject := r["subject"].(map[string]interface{})["reference"].(string)
		coding := r["code"].(map[string]interface{})["coding"].([]interface{})[0].(map[string]interface{})
		key := subject + "|" + coding["system"].(string) + "|" + coding["code"].(string)
		effective := r["effectiveDateTime"].(string)

		if distinct[key] == nil {
			distinct[key] = map[string]bool{}
		}
		distinct[key][effective] = true
		if key == prevKey {
			prev, _ := time.Parse(time.RFC3339, prevTime)
			cur, _ := time.Parse(time.RFC3339, effective)
			s.False(cur.After(prev), "group %s not sorted descending", key)
		}
		prevKey, prevTime = key, effective
	}
	for key, times := range distinct {
		s.LessOrEqual(len(times), max, "group %s", key)
	}
}

func (s *observationProviderSuite) TestLastN() {
	for day := 1; day <= 5; day++ {
		effective := time.Date(2024, 3, day, 8, 0, 0, 0, time.UTC).Format(time.RFC3339)
		s.Create("Observation", sampleObservation(s.patient, "8867-4", effective, float64(60+day)))
		s.Create("Observation", sampleObservation(s.patient, "8480-6", effective, float64(110+day)))
	}
	s.Create("Observation", sampleObservation(uuid.NewString(), "8867-4", "2024-03-01T08:00:00Z", 80))

	rec := s.Get("/Observation/$lastn?max=3&patient=Patient/" + s.patient)
	s.RequireStatus(rec, http.StatusOK)
	resources := s.EntryResources(s.ReadBundle(rec))
	s.Len(resources, 6)
	s.checkLastN(resources, 3)
	s.Equal("2024-03-05T08:00:00Z", resources[0]["effectiveDateTime"])

	rec = s.Get("/Observation/$lastn?code=8867-4")
	s.RequireStatus(rec, http.StatusOK)
	resources = s.EntryResources(s.ReadBundle(rec))
	s.Len(resources, 2)
	s.checkLastN(resources, 1)
}

func (s *observationProviderSuite) TestLastNPaging() {
	for day := 1; day <= 5; day++ {
		effective := time.Date(2024, 3, day, 8, 0, 0, 0, time.UTC).Format(time.RFC3339)
		s.Create("Observation", sampleObservation(s.patient, "8867-4", effective, float64(60+day)))
	}

	rec := s.Get("/Observation/$lastn?max=5&_count=2&patient=Patient/" + s.patient)
	s.RequireStatus(rec, http.StatusOK)
	b := s.ReadBundle(rec)
	s.Equal(5, *b.Total)
	s.Len(b.Entry, 2)
	s.Equal("2024-03-05T08:00:00Z", s.EntryResources(b)[0]["effectiveDateTime"])

	next := b.LinkURL("next")
	s.Contains(next, "/Observation/$lastn?")
	s.Contains(next, "_offset=2")
	s.Contains(next, "max=5")

	var effective []string
	path := "/Observation/$lastn?max=5&_count=2&patient=Patient/" + s.patient
	for i := 0; path != ""; i++ {
		s.Require().Less(i, 5, "too many pages")
		rec := s.Get(path)
		s.RequireStatus(rec, http.StatusOK)
		page := s.ReadBundle(rec)
		for _, r := range s.EntryResources(page) {
			effective = append(effective, r["effectiveDateTime"].(string))
		}
		path = ""
		if link := page.LinkURL("next"); link != "" {
			path = s.Follow(link)
		}
	}
	s.Equal([]string{
		"2024-03-05T08:00:00Z", "2024-03-04T08:00:00Z", "2024-03-03T08:00:00Z",
		"2024-03-02T08:00:00Z", "2024-03-01T08:00:00Z",
	}, effective)

	s.RequireStatus(s.Get("/Observation/$lastn?_count=-1"), http.StatusBadRequest)
}

func (s *observationProviderSuite) TestLastNValidation() {
	rec := s.Get("/Observation/$lastn?max=0")
	s.RequireStatus(rec, http.StatusBadRequest)
	s.ReadOutcome(rec)

	s.RequireStatus(s.Get("/Observation/$lastn?value-quantity=gt5"), http.StatusBadRequest)
	s.RequireStatus(s.Get("/Observation/$lastn-encounters?code=8867-4"), http.StatusBadRequest)
	s.RequireStatus(s.Get("/Observation/$lastn-encounters?patient="+s.patient), http.StatusOK)
}

func (s *observationProviderSuite) TestCapabilityAdvertisesOperations() {
	rec := s.Get("/metadata")
	s.RequireStatus(rec, http.StatusOK)
	body := rec.Body.String()
	s.True(strings.Contains(body, `"lastn"`))
	s.True(strings.Contains(body, `"lastn-encounters"`))
}
