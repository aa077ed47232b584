package observation

import (
	"github.com/labstack/echo/v4"

	"github.com/emr/fhir2/internal/platform/fhir"
)

type Handler struct {
	svc      *Service
	provider *fhir.Provider
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes adds the Observation provider to reg and mounts $lastn and
// $lastn-encounters on g behind the read middleware.
func (h *Handler) RegisterRoutes(reg *fhir.Registry, g *echo.Group, read ...echo.MiddlewareFunc) *fhir.Provider {
	h.provider = reg.Register(h.svc)

	g.GET("/Observation/$lastn", h.LastN, read...)
	g.GET("/Observation/$lastn-encounters", h.LastNEncounters, read...)

	caps := reg.Capabilities()
	caps.AddOperation(ResourceType, fhir.OperationCapability{
		Name:       "lastn",
		Definition: "http://hl7.org/fhir/OperationDefinition/Observation-lastn",
	})
	caps.AddOperation(ResourceType, fhir.OperationCapability{
		Name:       "lastn-encounters",
		Definition: "http://hl7.org/fhir/OperationDefinition/Observation-lastn",
	})
	return h.provider
}

// LastN handles GET /fhir/Observation/$lastn.
func (h *Handler) LastN(c echo.Context) error {
	return h.lastN(c, false)
}

// LastNEncounters handles GET /fhir/Observation/$lastn-encounters.
func (h *Handler) LastNEncounters(c echo.Context) error {
	return h.lastN(c, true)
}

func (h *Handler) lastN(c echo.Context, byEncounter bool) error {
	params, err := fhir.ParseLastNParams(c.QueryParams(), byEncounter)
	if err != nil {
		return h.provider.RespondOperation(c, nil, err)
	}
	results, err := h.svc.LastN(c.Request().Context(), params, byEncounter)
	return h.provider.RespondOperation(c, results, err)
}
