// Package event defines the envelopes carried on the division event bus.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the semantic type of an envelope. Values are part of the
// wire contract with existing dashboard subscribers and must not change.
type Kind string

const (
	KindMatchStarted          Kind = "matchStarted"
	KindMatchCompleted        Kind = "matchCompleted"
	KindMatchAborted          Kind = "matchAborted"
	KindMatchLoaded           Kind = "matchLoaded"
	KindMatchEndgameTriggered Kind = "matchEndgameTriggered"
	KindMatchStageAdvanced    Kind = "matchStageAdvanced"
	KindSessionStarted        Kind = "judgingSessionStarted"
	KindSessionCompleted      Kind = "judgingSessionCompleted"
	KindSessionAborted        Kind = "judgingSessionAborted"
)

// Envelope is an immutable, versioned event record. Version is assigned per
// (division, kind), strictly increasing from 1; subscribers use it for
// ordering and gap detection, never wall-clock time.
type Envelope struct {
	Kind       Kind            `json:"type"`
	DivisionID string          `json:"divisionId"`
	Timestamp  int64           `json:"timestamp"` // ms since epoch
	Data       json.RawMessage `json:"data"`
	Version    uint64          `json:"version"`
}

// Payload is the typed content of an envelope. One struct per kind rather
// than an untyped map probed by field presence.
type Payload interface {
	EventKind() Kind
}

type MatchStarted struct {
	MatchID    string    `json:"matchId"`
	StartTime  time.Time `json:"startTime"`
	StartDelta int       `json:"startDelta"` // signed seconds vs. scheduled time
}

func (MatchStarted) EventKind() Kind { return KindMatchStarted }

type MatchCompleted struct {
	MatchID           string  `json:"matchId"`
	AutoLoadedMatchID *string `json:"autoLoadedMatchId"`
}

func (MatchCompleted) EventKind() Kind { return KindMatchCompleted }

type MatchAborted struct {
	MatchID string `json:"matchId"`
}

func (MatchAborted) EventKind() Kind { return KindMatchAborted }

type MatchLoaded struct {
	MatchID string `json:"matchId"`
}

func (MatchLoaded) EventKind() Kind { return KindMatchLoaded }

type MatchEndgameTriggered struct {
	MatchID string `json:"matchId"`
}

func (MatchEndgameTriggered) EventKind() Kind { return KindMatchEndgameTriggered }

type MatchStageAdvanced struct {
	Stage string `json:"stage"`
}

func (MatchStageAdvanced) EventKind() Kind { return KindMatchStageAdvanced }

type SessionStarted struct {
	SessionID  string    `json:"sessionId"`
	StartTime  time.Time `json:"startTime"`
	StartDelta int       `json:"startDelta"`
}

func (SessionStarted) EventKind() Kind { return KindSessionStarted }

type SessionCompleted struct {
	SessionID string `json:"sessionId"`
}

func (SessionCompleted) EventKind() Kind { return KindSessionCompleted }

type SessionAborted struct {
	SessionID string `json:"sessionId"`
}

func (SessionAborted) EventKind() Kind { return KindSessionAborted }

// NewEnvelope builds an envelope for the payload. The caller (the bus) owns
// version assignment.
func NewEnvelope(divisionID string, p Payload, version uint64, now time.Time) (Envelope, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshaling %s payload: %w", p.EventKind(), err)
	}
	return Envelope{
		Kind:       p.EventKind(),
		DivisionID: divisionID,
		Timestamp:  now.UnixMilli(),
		Data:       data,
		Version:    version,
	}, nil
}

// Decode returns the typed payload of an envelope. Gap markers decode to Gap.
func Decode(e Envelope) (Payload, error) {
	if IsGap(e.Data) {
		return Gap{}, nil
	}

	var p Payload
	switch e.Kind {
	case KindMatchStarted:
		p = &MatchStarted{}
	case KindMatchCompleted:
		p = &MatchCompleted{}
	case KindMatchAborted:
		p = &MatchAborted{}
	case KindMatchLoaded:
		p = &MatchLoaded{}
	case KindMatchEndgameTriggered:
		p = &MatchEndgameTriggered{}
	case KindMatchStageAdvanced:
		p = &MatchStageAdvanced{}
	case KindSessionStarted:
		p = &SessionStarted{}
	case KindSessionCompleted:
		p = &SessionCompleted{}
	case KindSessionAborted:
		p = &SessionAborted{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}

	if err := json.Unmarshal(e.Data, p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", e.Kind, err)
	}
	return p, nil
}
