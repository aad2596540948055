package service

import (
	"crypto/rand"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PRISSET/Dev-Planner/internal/domain"
)

// Room codes are drawn from a 32-symbol alphabet that avoids the
// visually ambiguous 0/O and 1/I pairs. Codes are stored and rendered
// upper case; lookups normalize their input.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// CollabService owns all room state: creation, membership, code
// indexing, host authority and teardown. It knows nothing about the
// transport; the hub translates connection events into calls on it.
//
// All operations are synchronous and guarded by one mutex so that a
// join can never interleave with a concurrent close of the same room.
// No I/O happens inside the critical section.
type CollabService struct {
	mu         sync.RWMutex
	rooms      map[string]*domain.Room
	codeToRoom map[string]string
}

// NewCollabService creates an empty registry. Construct one per process
// and inject it into the hub; there is no package-level instance.
func NewCollabService() *CollabService {
	return &CollabService{
		rooms:      make(map[string]*domain.Room),
		codeToRoom: make(map[string]string),
	}
}

// CreateRoom creates a room with the caller as host and sole member and
// returns its id and join code. The code is regenerated until it does
// not collide with any live room; with a 32^6 code space and small
// live-room counts the retry loop is effectively bounded.
func (s *CollabService) CreateRoom(hostID, hostName string, projectData json.RawMessage) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := generateCode()
	for _, taken := s.codeToRoom[code]; taken; _, taken = s.codeToRoom[code] {
		code = generateCode()
	}

	room := domain.NewRoom(uuid.NewString(), code, domain.Member{ID: hostID, Name: hostName}, projectData)
	s.rooms[room.ID] = room
	s.codeToRoom[code] = room.ID

	logrus.WithFields(logrus.Fields{
		"room_id": room.ID,
		"code":    code,
		"host_id": hostID,
	}).Info("Room created")
	return room.ID, code
}

// JoinRoom adds a member to the room matching the code and returns the
// room snapshot (including project data) so the joining party can sync.
// Joining again with the same id just updates the display name.
func (s *CollabService) JoinRoom(code, memberID, memberName string) (domain.RoomSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.roomByCode(code)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	room.AddMember(domain.Member{ID: memberID, Name: memberName})
	room.LastActive = time.Now()

	logrus.WithFields(logrus.Fields{
		"room_id":   room.ID,
		"member_id": memberID,
	}).Debug("Member joined room")
	return room.Snapshot(), nil
}

// RejoinRoom has the same membership semantics as JoinRoom but is meant
// for the reconnect path, and additionally reports whether the
// rejoining identity matches the stored host id. The host id is never
// rewritten here: a host coming back under a fresh connection id gets
// isHost=false (see DESIGN.md, preserved deliberately).
func (s *CollabService) RejoinRoom(code, memberID, memberName string) (domain.RoomSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.roomByCode(code)
	if err != nil {
		return domain.RoomSnapshot{}, false, err
	}
	room.AddMember(domain.Member{ID: memberID, Name: memberName})
	room.LastActive = time.Now()

	logrus.WithFields(logrus.Fields{
		"room_id":   room.ID,
		"member_id": memberID,
		"is_host":   room.HostID == memberID,
	}).Debug("Member rejoined room")
	return room.Snapshot(), room.HostID == memberID, nil
}

// LeaveRoom removes the member from the room. The room stays open even
// if it becomes empty or the host leaves; only an explicit close tears
// it down. Returns ErrNotInRoom when the member was not present.
func (s *CollabService) LeaveRoom(roomID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if !room.RemoveMember(memberID) {
		return ErrNotInRoom
	}
	room.LastActive = time.Now()
	return nil
}

// CloseRoom deletes the room and releases its code for reuse. Only the
// host may close; anyone else gets ErrNotHost with no partial effect.
func (s *CollabService) CloseRoom(roomID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if room.HostID != memberID {
		return ErrNotHost
	}
	s.deleteRoomLocked(room)
	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"code":    room.Code,
	}).Info("Room closed by host")
	return nil
}

// ExpireRoom deletes a room regardless of host authority. It exists for
// the idle sweep collaborator, never for client-triggered paths.
func (s *CollabService) ExpireRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	s.deleteRoomLocked(room)
	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"code":    room.Code,
	}).Info("Room expired")
	return true
}

// IsHost reports whether memberID is the host of the room. False when
// the room does not exist.
func (s *CollabService) IsHost(roomID, memberID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	return ok && room.HostID == memberID
}

// UpdateProjectData replaces the room's project data wholesale
// (last write wins, no merging). The payload is opaque to the broker.
func (s *CollabService) UpdateProjectData(roomID string, data json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	room.ProjectData = data
	room.LastActive = time.Now()
	return true
}

// Touch bumps the room's last-activity timestamp. Used by relayed
// events that do not otherwise mutate registry state.
func (s *CollabService) Touch(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[roomID]; ok {
		room.LastActive = time.Now()
	}
}

// GetRoom returns a snapshot of the room or ErrRoomNotFound.
func (s *CollabService) GetRoom(roomID string) (domain.RoomSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.RoomSnapshot{}, ErrRoomNotFound
	}
	return room.Snapshot(), nil
}

// GetRoomByCode returns a snapshot of the room matching the code
// (case-insensitive) or ErrRoomNotFound.
func (s *CollabService) GetRoomByCode(code string) (domain.RoomSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, err := s.roomByCode(code)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return room.Snapshot(), nil
}

// MembersList returns the room's members in join order. An unknown room
// yields an empty list, not an error: callers broadcast to possibly
// just-emptied rooms.
func (s *CollabService) MembersList(roomID string) []domain.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return []domain.Member{}
	}
	return room.Members()
}

// RoomCount returns the number of live rooms.
func (s *CollabService) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// IdleRoomIDs returns ids of rooms with no activity for at least ttl.
func (s *CollabService) IdleRoomIDs(ttl time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-ttl)
	var ids []string
	for id, room := range s.rooms {
		if room.LastActive.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// roomByCode resolves a code to a live room. Callers must hold s.mu.
func (s *CollabService) roomByCode(code string) (*domain.Room, error) {
	roomID, ok := s.codeToRoom[strings.ToUpper(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// deleteRoomLocked removes the room and frees its code. Callers must
// hold s.mu.
func (s *CollabService) deleteRoomLocked(room *domain.Room) {
	delete(s.rooms, room.ID)
	delete(s.codeToRoom, room.Code)
}

// generateCode draws codeLength independent uniform symbols from the
// code alphabet. 256 is a multiple of the alphabet size, so the modulo
// mapping introduces no bias.
func generateCode() string {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		// The kernel CSPRNG failing is not a recoverable condition.
		panic("collab: reading random bytes: " + err.Error())
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
