package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sirene-labs/annuaire-cli/internal/directory"
)

func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, listLimitMax)
	q := r.URL.Query()

	filter := directory.CompanyFilter{
		Activity:   strings.TrimSpace(q.Get("activity")),
		City:       strings.TrimSpace(q.Get("city")),
		PostalCode: strings.TrimSpace(q.Get("postal_code")),
		Page:       page,
		Limit:      limit,
	}

	companies, total, err := s.store.ListCompanies(r.Context(), filter)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if companies == nil {
		companies = []directory.CompanySummary{}
	}
	writeJSON(w, http.StatusOK, envelope{Data: companies, Pagination: paginate(total, page, limit)})
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	detail, err := s.store.GetCompanyDetail(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: detail})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	_, limit := pageParams(r, searchLimitMax)

	companies, err := s.store.SearchCompanies(r.Context(), query, limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if companies == nil {
		companies = []directory.CompanySummary{}
	}
	writeJSON(w, http.StatusOK, envelope{Data: companies})
}

func (s *Server) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	radius := defaultRadiusKM * 1.0
	if raw := q.Get("radius"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid radius")
			return
		}
		radius = v
	}
	if s.cfg.MaxRadiusKM > 0 && radius > s.cfg.MaxRadiusKM {
		radius = s.cfg.MaxRadiusKM
	}
	_, limit := pageParams(r, searchLimitMax)

	companies, err := s.store.ListNearby(r.Context(), lat, lng, radius, limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if companies == nil {
		companies = []directory.NearbyCompany{}
	}
	writeJSON(w, http.StatusOK, envelope{Data: companies})
}

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := s.store.ListActivities(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	if activities == nil {
		activities = []directory.Activity{}
	}
	writeJSON(w, http.StatusOK, envelope{Data: activities})
}

func (s *Server) companiesByActivity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid activity id")
		return
	}

	if _, err := s.store.GetActivity(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}

	page, limit := pageParams(r, activityLimitMax)
	companies, total, err := s.store.ListCompaniesByActivity(r.Context(), id, page, limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if companies == nil {
		companies = []directory.CompanySummary{}
	}
	writeJSON(w, http.StatusOK, envelope{Data: companies, Pagination: paginate(total, page, limit)})
}
