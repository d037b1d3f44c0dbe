package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/teleport/model"
	"voxelgate.ai/internal/sim/teleport/runtime"
)

// Sim is the read side of the running simulation.
type Sim interface {
	RootDimension() string
	Dimensions() []string
	TickRateHz() int
	GlobalTicks() uint64
	Inspect(ctx context.Context, src model.Location) (runtime.Inspection, []runtime.PendingView, error)
}

// Locator answers nearest-marker queries; discovery.Index implements it.
type Locator interface {
	Nearest(from model.Location) (model.Location, bool)
}

type subscriber struct {
	out chan []byte

	mu    sync.RWMutex
	dims  map[string]bool
	kinds map[string]bool
}

func (s *subscriber) setFilter(sub protocol.SubscribeMsg) {
	dims := map[string]bool{}
	for _, d := range sub.Dimensions {
		if d = strings.TrimSpace(d); d != "" {
			dims[d] = true
		}
	}
	kinds := map[string]bool{}
	for _, k := range sub.Kinds {
		if k = strings.ToUpper(strings.TrimSpace(k)); k != "" {
			kinds[k] = true
		}
	}
	s.mu.Lock()
	s.dims, s.kinds = dims, kinds
	s.mu.Unlock()
}

func (s *subscriber) wants(dim, kind string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.dims) > 0 && !s.dims[dim] {
		return false
	}
	return len(s.kinds) == 0 || s.kinds[kind]
}

type Server struct {
	sim      Sim
	locators map[string]Locator
	log      zerolog.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu   sync.RWMutex
	subs map[string]*subscriber
}

func NewServer(sim Sim, locators map[string]Locator, logger zerolog.Logger) *Server {
	return &Server{
		sim:      sim,
		locators: locators,
		log:      logger.With().Str("component", "observer").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback-only anyway
		},
		subs: map[string]*subscriber{},
	}
}

// Routes mounts every observer endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	mux.HandleFunc("/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/inspect", s.InspectHandler())
	mux.HandleFunc("/v1/nearest", s.NearestHandler())
}

// Publish fans ev out to every matching subscriber. It never blocks; slow subscribers
// lose events.
func (s *Server) Publish(ev runtime.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.subs) == 0 {
		return
	}
	b, err := json.Marshal(EventMsg(ev))
	if err != nil {
		s.log.Error().Err(err).Msg("encode event")
		return
	}
	for _, sub := range s.subs {
		if !sub.wants(ev.Source.Dim, string(ev.Kind)) {
			continue
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.guard(rw, r) {
			return
		}
		writeJSON(rw, http.StatusOK, s.welcome(""))
	}
}

func (s *Server) InspectHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.guard(rw, r) {
			return
		}
		src, err := ParseLocation(r)
		if err != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
			return
		}
		ins, pend, err := s.sim.Inspect(r.Context(), src)
		if err != nil {
			writeError(rw, http.StatusServiceUnavailable, protocol.ErrBusy, err.Error())
			return
		}
		resp := protocol.InspectResponse{
			ProtocolVersion: protocol.Version,
			Tick:            s.sim.GlobalTicks(),
			Source:          wireLoc(ins.Source),
			Nodes:           ins.Nodes,
			Range:           ins.Range,
			Active:          ins.Active,
			Queued:          ins.Queued,
		}
		if ins.HasDestination {
			d := wireLoc(ins.Destination)
			resp.Destination = &d
		}
		for _, p := range pend {
			resp.Pending = append(resp.Pending, protocol.PendingInfo{
				Group:       p.Group.String(),
				Destination: wireLoc(p.Destination),
				Stage:       p.Stage.String(),
				Timer:       p.Timer,
				CuesFired:   p.CuesFired,
			})
		}
		writeJSON(rw, http.StatusOK, resp)
	}
}

func (s *Server) NearestHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.guard(rw, r) {
			return
		}
		kind := r.URL.Query().Get("kind")
		loc, ok := s.locators[kind]
		if !ok {
			writeError(rw, http.StatusNotFound, protocol.ErrNotFound, fmt.Sprintf("unknown marker kind %q", kind))
			return
		}
		from, err := ParseLocation(r)
		if err != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
			return
		}
		resp := protocol.NearestResponse{
			ProtocolVersion: protocol.Version,
			Kind:            kind,
			From:            wireLoc(from),
		}
		if at, found := loc.Nearest(from); found {
			l := wireLoc(at)
			resp.Found = true
			resp.Location = &l
			resp.Distance = math.Sqrt(float64(at.DistSq(from)))
		}
		writeJSON(rw, http.StatusOK, resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		first, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		sub := &subscriber{out: make(chan []byte, 1024)}
		sub.setFilter(first)

		welcome, _ := json.Marshal(s.welcome(sid))
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
			return
		}

		s.mu.Lock()
		s.subs[sid] = sub
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()
		s.log.Info().Str("session", sid).Str("remote", r.RemoteAddr).Msg("observer subscribed")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if next, ok := decodeSubscribe(msg); ok {
				sub.setFilter(next)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Info().Str("session", sid).Msg("observer left")
	}
}

func (s *Server) welcome(sid string) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sid,
		RootDimension:   s.sim.RootDimension(),
		Dimensions:      s.sim.Dimensions(),
		TickRateHz:      s.sim.TickRateHz(),
		Tick:            s.sim.GlobalTicks(),
	}
}

func (s *Server) guard(rw http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if !IsLoopbackRemote(r.RemoteAddr) {
		writeError(rw, http.StatusForbidden, protocol.ErrForbidden, "loopback only")
		return false
	}
	return true
}

func decodeSubscribe(b []byte) (protocol.SubscribeMsg, bool) {
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(b, &sub); err != nil {
		return sub, false
	}
	return sub, sub.Type == protocol.TypeSubscribe && sub.ProtocolVersion == protocol.Version
}

// EventMsg converts an engine event to its wire form.
func EventMsg(ev runtime.Event) protocol.EventMsg {
	m := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Kind:            string(ev.Kind),
		Tick:            ev.Tick,
		Source:          wireLoc(ev.Source),
		Group:           ev.Group.String(),
		Scale:           ev.Scale,
		Members:         ev.Members,
		Code:            ev.Code,
		Message:         ev.Message,
	}
	if ev.Kind != runtime.EventReject {
		m.Stage = ev.Stage.String()
	}
	if ev.Destination.Dim != "" {
		d := wireLoc(ev.Destination)
		m.Destination = &d
	}
	return m
}

func wireLoc(l model.Location) protocol.Loc {
	return protocol.Loc{Dim: l.Dim, Pos: [3]int{l.X, l.Y, l.Z}}
}

// ParseLocation reads dim, x, y and z from the query string.
func ParseLocation(r *http.Request) (model.Location, error) {
	q := r.URL.Query()
	loc := model.Location{Dim: strings.TrimSpace(q.Get("dim"))}
	if loc.Dim == "" {
		return loc, fmt.Errorf("missing dim")
	}
	for _, c := range []struct {
		key string
		dst *int
	}{{"x", &loc.X}, {"y", &loc.Y}, {"z", &loc.Z}} {
		n, err := strconv.Atoi(q.Get(c.key))
		if err != nil {
			return loc, fmt.Errorf("bad %s: %q", c.key, q.Get(c.key))
		}
		*c.dst = n
	}
	return loc, nil
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
}

// IsLoopbackRemote reports whether an http.Request RemoteAddr is a loopback address.
func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
