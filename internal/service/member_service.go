package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/store"
)

// MemberService edits the live participant list of a room. Every write goes
// through the store's participants merge.
type MemberService struct {
	store *store.Store
	now   func() time.Time
	log   *slog.Logger
}

func NewMemberService(st *store.Store, now func() time.Time) *MemberService {
	if now == nil {
		now = time.Now
	}
	return &MemberService{
		store: st,
		now:   now,
		log:   slog.Default().With("component", "members"),
	}
}

type roomParticipants struct {
	capacity int
	list     []map[string]any
}

func (r roomParticipants) index(userID string) int {
	for i, p := range r.list {
		if id, _ := p["id"].(string); id == userID {
			return i
		}
	}
	return -1
}

func (r roomParticipants) patch() store.Patch {
	out := make([]any, len(r.list))
	for i, p := range r.list {
		out[i] = p
	}
	return store.Patch{"participants": out}
}

func (s *MemberService) load(ctx context.Context, roomID string) (roomParticipants, error) {
	rec, ok, err := s.store.FindOne(ctx, store.CollectionRooms, store.Query{"id": roomID})
	if err != nil {
		return roomParticipants{}, err
	}
	if !ok {
		return roomParticipants{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, roomID)
	}
	var out roomParticipants
	if c, ok := rec["capacity"].(float64); ok {
		out.capacity = int(c)
	}
	raw, _ := rec["participants"].([]any)
	for _, p := range raw {
		if m, ok := p.(map[string]any); ok {
			out.list = append(out.list, m)
		}
	}
	return out, nil
}

func (s *MemberService) write(ctx context.Context, roomID string, rp roomParticipants) error {
	_, ok, err := s.store.Update(ctx, store.CollectionRooms, store.Query{"id": roomID}, rp.patch())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: room %s", domain.ErrUpdateFailed, roomID)
	}
	return nil
}

// AddParticipant joins u to the room. A user already present is returned as
// stored, so repeated joins converge on one entry.
func (s *MemberService) AddParticipant(ctx context.Context, roomID string, u domain.User) (*domain.Participant, error) {
	rp, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if i := rp.index(u.ID); i >= 0 {
		existing, err := store.Decode[domain.Participant](rp.list[i])
		if err != nil {
			return nil, err
		}
		s.log.Debug("participant already in room", "room", roomID, "user", u.ID)
		return &existing, nil
	}
	if rp.capacity > 0 && len(rp.list) >= rp.capacity {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomFull, roomID)
	}

	p := domain.NewParticipant(u, s.now().UTC())
	rec, err := store.Encode(p)
	if err != nil {
		return nil, err
	}
	rp.list = append(rp.list, rec)
	if err := s.write(ctx, roomID, rp); err != nil {
		return nil, err
	}
	s.log.Info("participant joined", "room", roomID, "user", u.ID, "role", u.Role, "count", len(rp.list))
	return &p, nil
}

func (s *MemberService) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	rp, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	i := rp.index(userID)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotInRoom, userID)
	}
	rp.list = append(rp.list[:i], rp.list[i+1:]...)
	if err := s.write(ctx, roomID, rp); err != nil {
		return err
	}
	s.log.Info("participant left", "room", roomID, "user", userID, "count", len(rp.list))
	return nil
}

func (s *MemberService) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	rp, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(rp.list))
	for _, m := range rp.list {
		p, err := store.Decode[domain.Participant](m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdateParticipantStreamingStatus records whether userID is broadcasting.
func (s *MemberService) UpdateParticipantStreamingStatus(ctx context.Context, roomID, userID string, isStreaming bool) error {
	rp, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	i := rp.index(userID)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotInRoom, userID)
	}
	rp.list[i]["isStreaming"] = isStreaming
	if err := s.write(ctx, roomID, rp); err != nil {
		return err
	}
	s.log.Info("streaming status updated", "room", roomID, "user", userID, "streaming", isStreaming)
	return nil
}
