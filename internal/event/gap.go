package event

import (
	"encoding/json"
	"time"
)

// Gap is the synthetic payload emitted when a reconnecting subscriber has
// fallen further behind than the replay buffer covers. The client must fall
// back to a full re-fetch instead of trusting incremental replay.
type Gap struct{}

func (Gap) EventKind() Kind { return "" }

// Wire shape kept from the existing subscribers: {"_gap": true}.
type gapMarker struct {
	Gap bool `json:"_gap"`
}

// GapEnvelope builds the marker envelope for a kind. Version carries the
// current server version so the client can resubscribe from it after the
// re-fetch.
func GapEnvelope(divisionID string, kind Kind, serverVersion uint64, now time.Time) Envelope {
	data, _ := json.Marshal(gapMarker{Gap: true})
	return Envelope{
		Kind:       kind,
		DivisionID: divisionID,
		Timestamp:  now.UnixMilli(),
		Data:       data,
		Version:    serverVersion,
	}
}

// IsGap reports whether raw payload data is a gap marker.
func IsGap(data json.RawMessage) bool {
	var m gapMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	return m.Gap
}
