package api

import (
	"net/http"

	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
)

// listPlans returns the public catalog; ?all=true includes unlisted plans.
func (s *server) listPlans(r *http.Request) (Response, error) {
	plans, err := s.svc.Catalog.List(r.Context())
	if err != nil {
		return nil, err
	}
	if r.URL.Query().Get("all") == "true" {
		return JSONList(plans), nil
	}

	public := make([]plan.Plan, 0, len(plans))
	for _, p := range plans {
		if p.Public {
			public = append(public, p)
		}
	}
	return JSONList(public), nil
}

func (s *server) registerTenant(r *http.Request) (Response, error) {
	var req subscription.RegisterParams
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	t, err := s.svc.Registrar.Register(r.Context(), req)
	if err != nil {
		return nil, err
	}
	return JSONWithStatus(http.StatusCreated, t), nil
}
