package domain

import (
	"encoding/json"
	"time"
)

// Member is a connection currently associated with a room, identified by
// its connection id and a display name chosen by the user.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Room is an ephemeral collaboration session. It lives only in memory:
// a room exists from the moment its host creates it until the host
// closes it (or the idle sweep expires it).
type Room struct {
	ID          string
	Code        string
	HostID      string
	ProjectData json.RawMessage
	CreatedAt   time.Time
	LastActive  time.Time

	members map[string]Member
	// join order, so members lists render stably across snapshots
	order []string
}

// NewRoom creates a room with the host as its sole member.
func NewRoom(id, code string, host Member, projectData json.RawMessage) *Room {
	now := time.Now()
	return &Room{
		ID:          id,
		Code:        code,
		HostID:      host.ID,
		ProjectData: projectData,
		CreatedAt:   now,
		LastActive:  now,
		members:     map[string]Member{host.ID: host},
		order:       []string{host.ID},
	}
}

// AddMember inserts a member or, if the id is already present, updates
// its display name in place without changing its position.
func (r *Room) AddMember(m Member) {
	if _, ok := r.members[m.ID]; !ok {
		r.order = append(r.order, m.ID)
	}
	r.members[m.ID] = m
}

// RemoveMember deletes a member and reports whether it was present.
func (r *Room) RemoveMember(id string) bool {
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	for i, mid := range r.order {
		if mid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// HasMember reports whether the connection id is a member of the room.
func (r *Room) HasMember(id string) bool {
	_, ok := r.members[id]
	return ok
}

// Members returns the member list in join order.
func (r *Room) Members() []Member {
	out := make([]Member, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

// MemberCount returns the number of members currently in the room.
func (r *Room) MemberCount() int {
	return len(r.members)
}

// Snapshot returns a point-in-time copy safe to use outside the
// registry lock. ProjectData is shared but treated as read-only
// everywhere (sync replaces it wholesale, nothing mutates it).
func (r *Room) Snapshot() RoomSnapshot {
	return RoomSnapshot{
		ID:          r.ID,
		Code:        r.Code,
		HostID:      r.HostID,
		ProjectData: r.ProjectData,
		CreatedAt:   r.CreatedAt,
		LastActive:  r.LastActive,
		Members:     r.Members(),
	}
}

// RoomSnapshot is an immutable copy of a room's state as of one
// registry operation.
type RoomSnapshot struct {
	ID          string
	Code        string
	HostID      string
	ProjectData json.RawMessage
	CreatedAt   time.Time
	LastActive  time.Time
	Members     []Member
}
