package protocol

// Loc is a cell position on the wire.
type Loc struct {
	Dim string `json:"dim"`
	Pos [3]int `json:"pos"`
}

// SUBSCRIBE (client -> server). First message on the observer socket; may be re-sent to
// change filters. Empty filters match everything.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Dimensions      []string `json:"dimensions,omitempty"`
	Kinds           []string `json:"kinds,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	SessionID       string   `json:"session_id"`
	RootDimension   string   `json:"root_dimension"`
	Dimensions      []string `json:"dimensions"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Tick            uint64   `json:"tick"`
}

// TP_EVENT (server -> client)
type EventMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Kind            string  `json:"kind"`
	Tick            uint64  `json:"tick"`
	Source          Loc     `json:"source"`
	Destination     *Loc    `json:"destination,omitempty"`
	Group           string  `json:"group"`
	Stage           string  `json:"stage,omitempty"`
	Scale           float64 `json:"scale,omitempty"`
	Members         int     `json:"members,omitempty"`
	Code            string  `json:"code,omitempty"`
	Message         string  `json:"message,omitempty"`
}

// ERROR (server -> client), also the body of failed HTTP queries.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// HTTP response for GET /v1/inspect.
type InspectResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Source          Loc           `json:"source"`
	Nodes           int           `json:"nodes"`
	Range           int           `json:"range"`
	Active          bool          `json:"active"`
	Destination     *Loc          `json:"destination,omitempty"`
	Queued          int           `json:"queued"`
	Pending         []PendingInfo `json:"pending,omitempty"`
}

type PendingInfo struct {
	Group       string `json:"group"`
	Destination Loc    `json:"destination"`
	Stage       string `json:"stage"`
	Timer       int    `json:"timer"`
	CuesFired   int    `json:"cues_fired"`
}

// HTTP response for GET /v1/nearest.
type NearestResponse struct {
	ProtocolVersion string  `json:"protocol_version"`
	Kind            string  `json:"kind"`
	From            Loc     `json:"from"`
	Found           bool    `json:"found"`
	Location        *Loc    `json:"location,omitempty"`
	Distance        float64 `json:"distance,omitempty"`
}
