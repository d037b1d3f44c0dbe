package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelgate.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// validateGo encodes v and validates the decoded JSON document.
func validateGo(t *testing.T, s *jsonschema.Schema, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(doc); err != nil {
		t.Fatalf("validate %s: %v", b, err)
	}
}

func TestSchemas_ValidateMessages(t *testing.T) {
	validateGo(t, compile(t, "subscribe.schema.json"), protocol.SubscribeMsg{
		Type:            protocol.TypeSubscribe,
		ProtocolVersion: protocol.Version,
		Dimensions:      []string{"overworld"},
		Kinds:           []string{"COMMIT", "ABORT"},
	})

	validateGo(t, compile(t, "welcome.schema.json"), protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "O1",
		RootDimension:   "overworld",
		Dimensions:      []string{"nether", "overworld"},
		TickRateHz:      20,
		Tick:            12,
	})

	validateGo(t, compile(t, "event.schema.json"), protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Kind:            "COMMIT",
		Tick:            50,
		Source:          protocol.Loc{Dim: "overworld", Pos: [3]int{0, 64, 0}},
		Destination:     &protocol.Loc{Dim: "overworld", Pos: [3]int{40, 64, 40}},
		Group:           "6f1c1f9e-8a3b-4a5e-9f62-1f0f3f7b2d11",
		Stage:           "BEAM",
		Scale:           3,
		Members:         3,
	})

	validateGo(t, compile(t, "inspect.schema.json"), protocol.InspectResponse{
		ProtocolVersion: protocol.Version,
		Source:          protocol.Loc{Dim: "overworld", Pos: [3]int{0, 64, 0}},
		Nodes:           10,
		Range:           100,
		Active:          true,
		Queued:          1,
		Pending: []protocol.PendingInfo{{
			Group:       "6f1c1f9e-8a3b-4a5e-9f62-1f0f3f7b2d11",
			Destination: protocol.Loc{Dim: "overworld", Pos: [3]int{40, 64, 40}},
			Stage:       "MEDIUM",
			Timer:       3,
			CuesFired:   2,
		}},
	})
}

func TestSchemas_RejectBadEvent(t *testing.T) {
	s := compile(t, "event.schema.json")
	var doc any
	_ = json.Unmarshal([]byte(`{
	  "type":"TP_EVENT",
	  "protocol_version":"1.0",
	  "kind":"TELEPORTED",
	  "tick":1,
	  "source":{"dim":"overworld","pos":[0,64,0]},
	  "group":"g"
	}`), &doc)
	if err := s.Validate(doc); err == nil {
		t.Fatalf("expected unknown kind rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"SUBSCRIBE","protocol_version":"1.0","kinds":["CUE"]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != protocol.TypeSubscribe || m.ProtocolVersion != protocol.Version {
		t.Fatalf("unexpected base: %+v", m)
	}
}
