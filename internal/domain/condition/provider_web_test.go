package condition

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"

	"github.com/emr/fhir2/internal/fhirtest"
	"github.com/emr/fhir2/internal/platform/fhir"
)

type conditionProviderSuite struct {
	fhirtest.ProviderSuite
}

func TestConditionProvider(t *testing.T) {
	suite.Run(t, new(conditionProviderSuite))
}

func (s *conditionProviderSuite) SetupTest() {
	s.Mount(func(reg *fhir.Registry, _ *echo.Group) {
		NewHandler(NewService(newMockRepo(), s.Versions, nil)).RegisterRoutes(reg)
	})
}

func (s *conditionProviderSuite) TestCreateReadUpdate() {
	pid := uuid.NewString()
	id := s.Create("Condition", sampleCondition(pid))

	rec := s.Get("/Condition/" + id)
	s.RequireStatus(rec, http.StatusOK)
	res := s.ReadResource(rec)
	s.Equal("Patient/"+pid, res["subject"].(map[string]interface{})["reference"])
	s.Equal("2019-06-03T10:00:00Z", res["recordedDate"])

	res["note"] = []interface{}{map[string]interface{}{"text": "diet controlled"}}
	rec = s.Put("/Condition/"+id, res)
	s.RequireStatus(rec, http.StatusOK)
	s.Equal(`W/"2"`, rec.Header().Get("ETag"))
	notes := s.ReadResource(rec)["note"].([]interface{})
	s.Equal("diet controlled", notes[0].(map[string]interface{})["text"])
}

func (s *conditionProviderSuite) TestSearchByPatient() {
	pid := uuid.NewString()
	id := s.Create("Condition", sampleCondition(pid))
	s.Create("Condition", sampleCondition(uuid.NewString()))

	rec := s.Get("/Condition?patient=" + pid + "&clinical-status=active")
	s.RequireStatus(rec, http.StatusOK)
	s.Equal([]string{id}, s.EntryIDs(s.ReadBundle(rec)))
}

func (s *conditionProviderSuite) TestInvalidStatusCombination() {
	res := sampleCondition(uuid.NewString())
	res["verificationStatus"] = map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "entered-in-error"}}}
	rec := s.Post("/Condition", res)
	s.RequireStatus(rec, http.StatusBadRequest)
	s.NotEmpty(s.ReadOutcome(rec).Issue)
}

func (s *conditionProviderSuite) TestUnknownParameter() {
	rec := s.Get("/Condition?severity=mild")
	s.RequireStatus(rec, http.StatusBadRequest)
	s.ReadOutcome(rec)
}
