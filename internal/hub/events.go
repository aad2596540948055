package hub

import (
	"encoding/json"

	"github.com/PRISSET/Dev-Planner/internal/domain"
)

// Envelope is the wire frame exchanged with clients. Requests that
// carry a non-zero Ack get a direct "ack" envelope back with the same
// Ack value, mirroring the call/ack pattern the desktop client uses;
// requests without one are fire-and-forget.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   uint64          `json:"ack,omitempty"`
}

// Inbound event names.
const (
	evtCreateRoom  = "create_room"
	evtJoinRoom    = "join_room"
	evtRejoinRoom  = "rejoin_room"
	evtSyncProject = "sync_project"
	evtTaskAction  = "task_action"
	evtCursorMove  = "cursor_move"
	evtLeaveRoom   = "leave_room"
	evtCloseRoom   = "close_room"
)

// Outbound event names.
const (
	evtAck            = "ack"
	evtMembersUpdated = "members_updated"
	evtUserJoined     = "user_joined"
	evtUserLeft       = "user_left"
	evtProjectUpdated = "project_updated"
	evtCursorUpdate   = "cursor_update"
	evtRoomClosed     = "room_closed"
)

type createRoomRequest struct {
	Name        string          `json:"name"`
	ProjectData json.RawMessage `json:"projectData"`
}

type joinRoomRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type syncProjectRequest struct {
	ProjectData json.RawMessage `json:"projectData"`
}

type taskActionRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type cursorMoveRequest struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Name string  `json:"name"`
}

type createRoomReply struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type joinRoomReply struct {
	Success     bool            `json:"success"`
	RoomID      string          `json:"roomId,omitempty"`
	ProjectData json.RawMessage `json:"projectData,omitempty"`
	Members     []domain.Member `json:"members,omitempty"`
	IsHost      *bool           `json:"isHost,omitempty"`
	Message     string          `json:"message,omitempty"`
}

type simpleReply struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type membersUpdatedEvent struct {
	Members []domain.Member `json:"members"`
}

type userJoinedEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type userLeftEvent struct {
	ID string `json:"id"`
}

type projectUpdatedEvent struct {
	ProjectData json.RawMessage `json:"projectData"`
}

type taskActionEvent struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
	From    string          `json:"from"`
}

type cursorUpdateEvent struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Name string  `json:"name"`
}

type roomClosedEvent struct {
	Message string `json:"message"`
}
