package alarm

// SyncEnvelope is the versioned bundle of device state exchanged with the
// remote counterpart. Conflict resolution is last-writer-wins at envelope
// granularity: the side with the higher revision replaces the other side's
// schedules and status wholesale.
type SyncEnvelope struct {
	// DeviceID identifies the device that produced the envelope.
	DeviceID string `json:"device_id"`
	// Revision is the monotonically increasing counter owned by whichever
	// side last accepted a write.
	Revision uint64 `json:"revision"`
	// ClockOffsetMS is the producer's estimate of how far the consumer's
	// clock drifts from its own, in milliseconds. The engine corrects for
	// it without touching the system clock.
	ClockOffsetMS int64 `json:"clock_offset_ms"`
	// Schedules is the full schedule set at Revision.
	Schedules []*Schedule `json:"schedules"`
	// Status is the producer's latest snapshot, informational for the peer.
	Status *Status `json:"status,omitempty"`
}

// Clone returns a deep copy of the envelope.
func (e *SyncEnvelope) Clone() *SyncEnvelope {
	if e == nil {
		return nil
	}

	return &SyncEnvelope{
		DeviceID:      e.DeviceID,
		Revision:      e.Revision,
		ClockOffsetMS: e.ClockOffsetMS,
		Schedules:     CloneSchedules(e.Schedules),
		Status:        e.Status.Clone(),
	}
}

// RevisionOrder is the outcome of comparing the local revision with a
// remote one.
type RevisionOrder uint8

const (
	// RevisionEqual means both sides have seen the same writes; sync is a no-op.
	RevisionEqual RevisionOrder = iota
	// RevisionAhead means the local side has writes the remote has not seen
	// and should push its envelope.
	RevisionAhead
	// RevisionBehind means the remote side is newer and its envelope should
	// be adopted wholesale.
	RevisionBehind
)

// String returns a short name for logging.
func (o RevisionOrder) String() string {
	switch o {
	case RevisionAhead:
		return "ahead"
	case RevisionBehind:
		return "behind"
	default:
		return "equal"
	}
}

// CompareRevisions orders the local revision against the remote one.
func CompareRevisions(local, remote uint64) RevisionOrder {
	switch {
	case local > remote:
		return RevisionAhead
	case local < remote:
		return RevisionBehind
	default:
		return RevisionEqual
	}
}
