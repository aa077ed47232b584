package medication

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"

	"github.com/emr/fhir2/internal/fhirtest"
	"github.com/emr/fhir2/internal/platform/fhir"
)

type medicationProviderSuite struct {
	fhirtest.ProviderSuite
}

func TestMedicationProvider(t *testing.T) {
	suite.Run(t, new(medicationProviderSuite))
}

func (s *medicationProviderSuite) SetupTest() {
	s.Mount(func(reg *fhir.Registry, _ *echo.Group) {
		NewHandler(NewService(newMockRepo(), s.Versions, nil)).RegisterRoutes(reg)
	})
}

func (s *medicationProviderSuite) TestMergePatchStatus() {
	id := s.Create("Medication", sampleMedication())

	rec := s.Patch("/Medication/"+id, "application/merge-patch+json", `{"status":"inactive"}`)
	s.RequireStatus(rec, http.StatusOK)
	s.Equal("inactive", s.ReadResource(rec)["status"])

	rec = s.Get("/Medication?status=inactive")
	s.RequireStatus(rec, http.StatusOK)
	s.Equal([]string{id}, s.EntryIDs(s.ReadBundle(rec)))
}

func (s *medicationProviderSuite) TestUpdateIDMismatch() {
	id := s.Create("Medication", sampleMedication())
	res := sampleMedication()
	res["id"] = "other"
	s.RequireStatus(s.Put("/Medication/"+id, res), http.StatusBadRequest)
}

func (s *medicationProviderSuite) TestHistory() {
	id := s.Create("Medication", sampleMedication())
	res := sampleMedication()
	res["id"] = id
	res["status"] = "inactive"
	s.RequireStatus(s.Put("/Medication/"+id, res), http.StatusOK)

	rec := s.Get("/Medication/" + id + "/_history")
	s.RequireStatus(rec, http.StatusOK)
	b := s.ReadBundle(rec)
	s.Equal("history", b.Type)
	s.Len(b.Entry, 2)

	rec = s.Get("/Medication/" + id + "/_history/1")
	s.RequireStatus(rec, http.StatusOK)
	s.Equal("active", s.ReadResource(rec)["status"])
}
