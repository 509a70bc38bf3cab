package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	transit "github.com/transitwatch/busbridge/internal"
	"github.com/transitwatch/busbridge/internal/bustime"
)

// fetch runs a descriptor through the client and writes the envelope.
// The envelope's meta.status is used as the HTTP status on failure.
func (s *server) fetch(w http.ResponseWriter, r *http.Request, d bustime.Descriptor) {
	res, err := s.deps.Client.Fetch(r.Context(), d)
	if err != nil {
		env := transit.Failure(err)
		status := env.Meta.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, env)
		return
	}
	writeJSON(w, http.StatusOK, transit.Success(res))
}

// badRequest writes an input-validation error envelope without touching the
// client; one-of parameter rules live here, not in descriptors.
func badRequest(w http.ResponseWriter, endpoint, msg string) {
	writeJSON(w, http.StatusBadRequest, transit.Failure(&transit.Error{
		Code:       transit.CodeMissingParam,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Meta:       transit.Meta{Endpoint: endpoint, Status: http.StatusBadRequest},
	}))
}

func (s *server) handleTime(w http.ResponseWriter, r *http.Request) {
	s.fetch(w, r, bustime.Descriptor{
		Endpoint: "gettime",
		CacheTTL: s.deps.Cache.TTLFor("gettime"),
	})
}

func (s *server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	s.fetch(w, r, bustime.Descriptor{
		Endpoint: "getroutes",
		CacheTTL: s.deps.Cache.TTLFor("getroutes"),
	})
}

func (s *server) handleDirections(w http.ResponseWriter, r *http.Request) {
	s.fetch(w, r, bustime.Descriptor{
		Endpoint: "getdirections",
		Params:   map[string]string{"rt": chi.URLParam(r, "rt")},
		Required: []string{"rt"},
		CacheTTL: s.deps.Cache.TTLFor("getdirections"),
	})
}

func (s *server) handleStops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.fetch(w, r, bustime.Descriptor{
		Endpoint: "getstops",
		Params: map[string]string{
			"rt":  q.Get("rt"),
			"dir": q.Get("dir"),
		},
		Required: []string{"rt", "dir"},
		CacheTTL: s.deps.Cache.TTLFor("getstops"),
	})
}

func (s *server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("rt") == "" && q.Get("pid") == "" {
		badRequest(w, "getpatterns", "either rt or pid is required")
		return
	}
	s.fetch(w, r, bustime.Descriptor{
		Endpoint: "getpatterns",
		Params: map[string]string{
			"rt":  q.Get("rt"),
			"pid": q.Get("pid"),
		},
		CacheTTL: s.deps.Cache.TTLFor("getpatterns"),
	})
}

func (s *server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("stpid") == "" && q.Get("vid") == "" {
		badRequest(w, "getpredictions", "either stpid or vid is required")
		return
	}
	s.fetch(w, r, bustime.Descriptor{
		Endpoint: "getpredictions",
		Params: map[string]string{
			"stpid": q.Get("stpid"),
			"vid":   q.Get("vid"),
			"rt":    q.Get("rt"),
			"top":   q.Get("top"),
		},
		CacheTTL: s.deps.Cache.TTLFor("getpredictions"),
	})
}

func (s *server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("rt") == "" && q.Get("vid") == "" {
		badRequest(w, "getvehicles", "either rt or vid is required")
		return
	}
	s.fetch(w, r, bustime.Descriptor{
		Endpoint: "getvehicles",
		Params: map[string]string{
			"rt":  q.Get("rt"),
			"vid": q.Get("vid"),
		},
		CacheTTL: s.deps.Cache.TTLFor("getvehicles"),
	})
}
