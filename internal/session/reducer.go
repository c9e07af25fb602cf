package session

import (
	"github.com/cwrk-planet/classroom-service/internal/domain"
)

const (
	roomClearedNotice  = "This session has ended."
	reconnectingNotice = "Connection lost, reconnecting..."
)

// State is what a view renders. Slices and the map are never mutated in
// place; every change produces new ones.
type State struct {
	Phase         Phase
	IsConnected   bool
	HasJoined     bool
	Messages      []domain.RoomMessage
	Stream        *domain.StreamState
	Participants  []domain.Participant
	SystemMessage string
	// RoomCleared is set once room_cleared arrives; the session is then
	// only waiting for its forced disconnect and never reconnects.
	RoomCleared   bool
	LocalStream   MediaStream
	RemoteStreams map[string]MediaStream
}

type EffectKind int

const (
	EffectJoin EffectKind = iota + 1
	EffectRefreshParticipants
	EffectPersistStreaming
	EffectStopLocalTracks
	EffectScheduleDisconnect
	EffectReconnect
	EffectRestoreMembership
)

// Effect is work the coordinator performs after a state change.
type Effect struct {
	Kind        EffectKind
	UserID      string
	IsStreaming bool
	Stream      MediaStream
}

// Reduce applies ev to s for the session of self. It does no I/O.
func Reduce(s State, self string, ev Event) (State, []Effect) {
	switch ev.Type {
	case EventConnected:
		if s.Phase != PhaseConnecting && s.Phase != PhaseConnected {
			return s, nil
		}
		s.Phase = PhaseConnected
		s.IsConnected = true
		s.SystemMessage = ""
		if s.HasJoined {
			// The relay drops a user whose socket closed, so a reconnect
			// checks the durable list instead of joining again.
			return s, []Effect{{Kind: EffectRestoreMembership}}
		}
		s.HasJoined = true
		return s, []Effect{{Kind: EffectJoin}}

	case EventDisconnected:
		s.IsConnected = false
		if s.Phase != PhaseConnected || s.RoomCleared {
			return s, nil
		}
		s.Phase = PhaseConnecting
		s.SystemMessage = reconnectingNotice
		return s, []Effect{{Kind: EffectReconnect}}

	case EventJoinFailed:
		s.HasJoined = false
		return s, nil

	case EventRoomState:
		if ev.Snapshot == nil {
			return s, nil
		}
		s.Participants = append([]domain.Participant(nil), ev.Snapshot.Participants...)
		s.Messages = append([]domain.RoomMessage(nil), ev.Snapshot.Messages...)
		s.Stream = copyStream(ev.Snapshot.Stream)
		return s, nil

	case EventParticipantsLoaded:
		s.Participants = append([]domain.Participant(nil), ev.Participants...)
		return s, nil

	case EventMessageReceived:
		if ev.Message == nil {
			return s, nil
		}
		for _, m := range s.Messages {
			if m.SameAs(*ev.Message) {
				return s, nil
			}
		}
		msgs := make([]domain.RoomMessage, len(s.Messages), len(s.Messages)+1)
		copy(msgs, s.Messages)
		s.Messages = append(msgs, *ev.Message)
		return s, nil

	case EventStreamStarted:
		s.Stream = copyStream(ev.Stream)
		return s, nil

	case EventStreamStopped:
		s.Stream = nil
		if ev.UserID == self && s.LocalStream != nil {
			local := s.LocalStream
			s.LocalStream = nil
			return s, []Effect{{Kind: EffectStopLocalTracks, Stream: local}}
		}
		return s, nil

	case EventStreamAdded:
		if ev.PeerID == "" || ev.Media == nil {
			return s, nil
		}
		remote := copyRemote(s.RemoteStreams)
		remote[ev.PeerID] = ev.Media
		s.RemoteStreams = remote
		return s, nil

	case EventStreamRemoved:
		if _, ok := s.RemoteStreams[ev.PeerID]; !ok {
			return s, nil
		}
		remote := copyRemote(s.RemoteStreams)
		delete(remote, ev.PeerID)
		s.RemoteStreams = remote
		return s, nil

	case EventUserJoined, EventUserLeft:
		return s, []Effect{{Kind: EffectRefreshParticipants}}

	case EventStreamStatusChange:
		if ev.UserID == "" {
			return s, nil
		}
		parts := make([]domain.Participant, len(s.Participants))
		copy(parts, s.Participants)
		for i := range parts {
			if parts[i].ID == ev.UserID {
				parts[i].IsStreaming = ev.IsStreaming
			}
		}
		s.Participants = parts
		return s, []Effect{{Kind: EffectPersistStreaming, UserID: ev.UserID, IsStreaming: ev.IsStreaming}}

	case EventRoomCleared:
		s.RoomCleared = true
		s.SystemMessage = roomClearedNotice
		if ev.Reason != "" {
			s.SystemMessage = roomClearedNotice + " (" + ev.Reason + ")"
		}
		s.Participants = nil
		s.Messages = nil
		s.Stream = nil
		return s, []Effect{{Kind: EffectScheduleDisconnect}}

	default:
		return s, nil
	}
}

func copyStream(st *domain.StreamState) *domain.StreamState {
	if st == nil || !st.IsActive {
		return nil
	}
	c := *st
	return &c
}

func copyRemote(m map[string]MediaStream) map[string]MediaStream {
	out := make(map[string]MediaStream, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
