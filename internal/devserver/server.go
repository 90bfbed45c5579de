// Package devserver is an in-memory implementation of the gaswatch backend
// API, used for local development and tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/httprate"

	"github.com/rubiojr/gaswatch/pkg/api"
)

const (
	DefaultRadius = 5.0 // km
	DefaultLimit  = 10
	MaxLimit      = 100
	DefaultDays   = 30
)

// Options configures a Server.
type Options struct {
	// Logger enables request logging when set.
	Logger *httplog.Logger
	// RateLimit is the number of requests per minute allowed per IP. Zero
	// disables rate limiting.
	RateLimit int
	// Token, when set, is required as a bearer token on favorites routes.
	Token string
}

type Server struct {
	data *Dataset
	opts Options
	log  *slog.Logger
}

func New(data *Dataset, opts Options) *Server {
	log := slog.New(slog.DiscardHandler)
	if opts.Logger != nil {
		log = opts.Logger.Logger
	}
	return &Server{data: data, opts: opts, log: log}
}

// Handler returns the router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	if s.opts.Logger != nil {
		r.Use(httplog.RequestLogger(s.opts.Logger))
	}
	r.Use(middleware.Recoverer)
	if s.opts.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.opts.RateLimit, time.Minute))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/fuel-types", s.fuelTypes)

		r.Route("/stations", func(r chi.Router) {
			r.Get("/nearby", s.nearby)
			r.Get("/{id}", s.station)
			r.Get("/{id}/history", s.history)
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/", s.favorites)
			r.Get("/stations/{id}", s.stationFavorites)
			r.Post("/bulk", s.addFavorites)
			r.Post("/bulk/remove", s.removeFavorites)
		})
	})
	return r
}

// ListenAndServe serves the API on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("Starting dev server", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.Token {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		writeError(w, http.StatusBadRequest, "invalid latitude value")
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		writeError(w, http.StatusBadRequest, "invalid longitude value")
		return
	}

	p := api.NearbyParams{
		Latitude:  lat,
		Longitude: lng,
		Radius:    floatParam(q.Get("radius"), DefaultRadius),
		Sort:      api.SortOrder(q.Get("sort")),
		Product:   q.Get("product"),
		Limit:     min(intParam(q.Get("limit"), DefaultLimit), MaxLimit),
		Offset:    intParam(q.Get("offset"), 0),
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Sort == "" {
		p.Sort = api.SortByDistance
	}
	if !p.Sort.Valid() {
		writeError(w, http.StatusBadRequest, "invalid sort value")
		return
	}

	page := s.data.Nearby(p)
	s.log.Debug("Nearby search", "lat", lat, "lng", lng, "radius", p.Radius, "total", page.Total, "offset", p.Offset)
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) station(w http.ResponseWriter, r *http.Request) {
	st, ok := s.data.Station(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errUnknownStation.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h, err := s.data.History(chi.URLParam(r, "id"), q.Get("product"), intParam(q.Get("days"), DefaultDays))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) fuelTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.FuelTypes())
}

func (s *Server) favorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.Favorites())
}

func (s *Server) stationFavorites(w http.ResponseWriter, r *http.Request) {
	products, err := s.data.StationFavorites(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) addFavorites(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulk(w, r)
	if !ok {
		return
	}
	if err := s.data.AddFavorites(req.GasStationID, req.ProductIDs); err != nil {
		writeDataError(w, err)
		return
	}
	s.log.Debug("Favorites added", "station", req.GasStationID, "products", req.ProductIDs)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeFavorites(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulk(w, r)
	if !ok {
		return
	}
	if err := s.data.RemoveFavorites(req.GasStationID, req.ProductIDs); err != nil {
		writeDataError(w, err)
		return
	}
	s.log.Debug("Favorites removed", "station", req.GasStationID, "products", req.ProductIDs)
	w.WriteHeader(http.StatusNoContent)
}

func decodeBulk(w http.ResponseWriter, r *http.Request) (api.BulkFavoritesRequest, bool) {
	var req api.BulkFavoritesRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.GasStationID) == "" || len(req.ProductIDs) == 0 {
		writeError(w, http.StatusBadRequest, "gas_station_id and product_ids are required")
		return req, false
	}
	return req, true
}

func writeDataError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUnknownStation):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errUnknownProduct):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func floatParam(s string, def float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func intParam(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}
