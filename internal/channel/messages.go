package channel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrMalformedMessage = errors.New("malformed message")
var ErrChannelUnavailable = errors.New("channel unavailable")

// Wire names for the message variants.
const (
	TypeRequestSnapshot = "REQUEST_INITIAL_DATA"
	TypeSnapshotPush    = "ENCOUNTER_UPDATE"
	TypeSnapshotPending = "ENCOUNTER_LOADING"
)

type Message interface{ isChannelMsg() }

// RequestSnapshot asks the control window for the full current state.
type RequestSnapshot struct{}

// SnapshotPush carries the authoritative state, either as a reply to
// RequestSnapshot or because something changed.
type SnapshotPush struct {
	Snapshot encounter.Snapshot
}

// SnapshotPending tells the display the control window is still loading.
type SnapshotPending struct{}

func (RequestSnapshot) isChannelMsg() {}
func (SnapshotPush) isChannelMsg()    {}
func (SnapshotPending) isChannelMsg() {}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["REQUEST_INITIAL_DATA", "ENCOUNTER_UPDATE", "ENCOUNTER_LOADING"]}
  },
  "if": {"properties": {"type": {"const": "ENCOUNTER_UPDATE"}}},
  "then": {
    "required": ["payload"],
    "properties": {"payload": {"$ref": "#/$defs/snapshot"}}
  },
  "$defs": {
    "snapshot": {
      "type": "object",
      "required": ["encounter", "creatures", "currentTurn", "currentRound", "fade"],
      "properties": {
        "encounter": {
          "type": "object",
          "required": ["id", "name"],
          "properties": {
            "id": {"type": "string"},
            "name": {"type": "string"},
            "background_image": {"type": "string"}
          }
        },
        "creatures": {"type": "array", "items": {"$ref": "#/$defs/creature"}},
        "currentTurn": {"type": "integer", "minimum": 0},
        "currentRound": {"type": "integer", "minimum": 1},
        "fade": {"type": "boolean"}
      }
    },
    "creature": {
      "type": "object",
      "required": ["id", "name", "initiative", "creature_type"],
      "properties": {
        "id": {"type": "string"},
        "name": {"type": "string"},
        "initiative": {"type": "integer", "minimum": 0},
        "creature_type": {"enum": ["player", "enemy", "ally", "other"]},
        "image_url": {"type": "string"}
      }
    }
  }
}`

var schema = jsonschema.MustCompileString("https://initiative-tracker.local/schemas/channel-envelope.json", envelopeSchema)

func Encode(msg Message) ([]byte, error) {
	var env envelope
	switch m := msg.(type) {
	case RequestSnapshot:
		env.Type = TypeRequestSnapshot
	case SnapshotPending:
		env.Type = TypeSnapshotPending
	case SnapshotPush:
		payload, err := json.Marshal(m.Snapshot.Clone())
		if err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
		env.Type = TypeSnapshotPush
		env.Payload = payload
	default:
		return nil, fmt.Errorf("encode %T: unsupported message", msg)
	}
	return json.Marshal(env)
}

// Decode validates the frame's shape before turning it into a Message.
// Anything that is not one of the known variants wraps ErrMalformedMessage.
func Decode(data []byte) (Message, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeRequestSnapshot:
		return RequestSnapshot{}, nil
	case TypeSnapshotPending:
		return SnapshotPending{}, nil
	case TypeSnapshotPush:
		var snap encounter.Snapshot
		if err := json.Unmarshal(env.Payload, &snap); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return SnapshotPush{Snapshot: snap.Clone()}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}
}
