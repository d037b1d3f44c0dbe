package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"voxelgate.ai/internal/persistence/indexdb"
	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/multiworld"
	"voxelgate.ai/internal/sim/teleport/model"
	"voxelgate.ai/internal/transport/observer"
)

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.metricsHandler)
	mux.HandleFunc("/v1/stats", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(a.stats())
	})
	mux.HandleFunc("/v1/markers", a.markersHandler)
	a.observer.Routes(mux)
	return mux
}

type markerResponse struct {
	Kind     string         `json:"kind"`
	Location model.Location `json:"location"`
	Changed  bool           `json:"changed"`
}

// markersHandler places (POST) or destroys (DELETE) a source or landing pad:
// /v1/markers?kind=source|landing_pad&dim=&x=&y=&z=[&powered=false]
func (a *app) markersHandler(rw http.ResponseWriter, r *http.Request) {
	if !observer.IsLoopbackRemote(r.RemoteAddr) {
		writeError(rw, http.StatusForbidden, protocol.ErrForbidden, "loopback only")
		return
	}
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	loc, err := observer.ParseLocation(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))

	var changed bool
	if r.Method == http.MethodPost {
		powered := r.URL.Query().Get("powered") != "false"
		changed, err = a.placeMarker(r.Context(), kind, loc, powered)
	} else {
		changed, err = a.destroyMarker(r.Context(), kind, loc)
	}
	switch {
	case errors.Is(err, errUnknownKind):
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	case errors.Is(err, multiworld.ErrUnknownDimension):
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, err.Error())
		return
	case errors.Is(err, multiworld.ErrLoopBusy):
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrBusy, err.Error())
		return
	case err != nil:
		a.log.Error().Err(err).Str("kind", kind).Str("location", loc.String()).Msg("marker update failed")
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(markerResponse{Kind: kind, Location: loc, Changed: changed})
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
}

type stats struct {
	Tick            uint64         `json:"tick"`
	Sources         int            `json:"sources"`
	LandingPads     int            `json:"landing_pads"`
	Cooldowns       int            `json:"cooldowns"`
	ArmedSources    int            `json:"armed_sources"`
	LoadRequests    int            `json:"load_requests"`
	Observers       int            `json:"observers"`
	ObserverDropped uint64         `json:"observer_dropped"`
	Index           *indexdb.Stats `json:"index,omitempty"`
}

func (a *app) stats() stats {
	s := stats{
		Tick:            a.manager.GlobalTicks(),
		Sources:         a.sources.Len(),
		LandingPads:     a.pads.Len(),
		Cooldowns:       a.engine.Cooldowns().Len(),
		ArmedSources:    a.engine.Edge().Locations(),
		LoadRequests:    a.engine.Loads().Pending(),
		Observers:       a.observer.Subscribers(),
		ObserverDropped: a.observer.Dropped(),
	}
	if a.idx != nil {
		st := a.idx.Stats()
		s.Index = &st
	}
	return s
}

func (a *app) metricsHandler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s := a.stats()

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP voxelgate_tick Global (root dimension) tick.\n")
	fmt.Fprintf(rw, "# TYPE voxelgate_tick gauge\n")
	fmt.Fprintf(rw, "voxelgate_tick %d\n", s.Tick)

	fmt.Fprintf(rw, "# HELP voxelgate_markers Registered markers by kind.\n")
	fmt.Fprintf(rw, "# TYPE voxelgate_markers gauge\n")
	fmt.Fprintf(rw, "voxelgate_markers{kind=%q} %d\n", "source", s.Sources)
	fmt.Fprintf(rw, "voxelgate_markers{kind=%q} %d\n", "landing_pad", s.LandingPads)

	fmt.Fprintf(rw, "# HELP voxelgate_cooldowns Groups currently holding a cooldown entry.\n")
	fmt.Fprintf(rw, "# TYPE voxelgate_cooldowns gauge\n")
	fmt.Fprintf(rw, "voxelgate_cooldowns %d\n", s.Cooldowns)

	fmt.Fprintf(rw, "# HELP voxelgate_armed_sources Sources with at least one armed group.\n")
	fmt.Fprintf(rw, "# TYPE voxelgate_armed_sources gauge\n")
	fmt.Fprintf(rw, "voxelgate_armed_sources %d\n", s.ArmedSources)

	fmt.Fprintf(rw, "# HELP voxelgate_queue_depth Pending transports per source.\n")
	fmt.Fprintf(rw, "# TYPE voxelgate_queue_depth gauge\n")
	for _, dim := range a.manager.Dimensions() {
		for _, src := range a.sources.Locations(dim) {
			fmt.Fprintf(rw, "voxelgate_queue_depth{source=%q} %d\n", src.String(), a.engine.Queues().Len(src))
		}
	}

	fmt.Fprintf(rw, "# HELP voxelgate_observer_dropped_total Events dropped for slow observers.\n")
	fmt.Fprintf(rw, "# TYPE voxelgate_observer_dropped_total counter\n")
	fmt.Fprintf(rw, "voxelgate_observer_dropped_total %d\n", s.ObserverDropped)

	if s.Index != nil {
		fmt.Fprintf(rw, "# HELP voxelgate_index_dropped_total Events the sqlite index could not keep up with.\n")
		fmt.Fprintf(rw, "# TYPE voxelgate_index_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelgate_index_dropped_total %d\n", s.Index.DropEventTotal)
		fmt.Fprintf(rw, "voxelgate_index_queue_depth %d\n", s.Index.QueueDepth)
	}
}
