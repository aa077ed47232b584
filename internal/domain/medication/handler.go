package medication

import "github.com/emr/fhir2/internal/platform/fhir"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes adds the Medication provider to reg, which mounts the routes.
func (h *Handler) RegisterRoutes(reg *fhir.Registry) *fhir.Provider {
	return reg.Register(h.svc)
}
