package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PRISSET/Dev-Planner/internal/domain"
	"github.com/PRISSET/Dev-Planner/internal/service"
)

// Journal records session lifecycle events for the audit trail. The
// hub treats it as fire-and-forget; failures never affect routing.
type Journal interface {
	Record(event domain.SessionEvent)
}

// NopJournal discards events. Used when no journal backend is
// configured.
type NopJournal struct{}

func (NopJournal) Record(domain.SessionEvent) {}

type messageKind int

const (
	kindRegister messageKind = iota
	kindUnregister
	kindEvent
	kindExpire
)

type hubMessage struct {
	kind   messageKind
	client *Client
	env    Envelope
	roomID string // kindExpire only
}

// Hub is the single source of truth for which room each connection is
// in, and the only place that decides which connections receive which
// outbound events. All inbound events funnel through one channel and
// are handled inline by Run, so a join can never interleave with a
// concurrent close. Fanout happens against a snapshot of the target
// set and never blocks on a slow peer.
type Hub struct {
	messageChan chan hubMessage
	quit        chan struct{}
	stopOnce    sync.Once
	collab      *service.CollabService
	journal     Journal
	log         *logrus.Entry

	mu         sync.RWMutex
	clients    map[string]*Client
	connToRoom map[string]string
	rooms      map[string]map[string]*Client
}

// NewHub creates a hub routing through the given registry.
func NewHub(collab *service.CollabService, journal Journal) *Hub {
	if collab == nil {
		panic("CollabService cannot be nil for Hub")
	}
	if journal == nil {
		journal = NopJournal{}
	}
	return &Hub{
		messageChan: make(chan hubMessage, 512),
		quit:        make(chan struct{}),
		collab:      collab,
		journal:     journal,
		log:         logrus.WithField("component", "hub"),
		clients:     make(map[string]*Client),
		connToRoom:  make(map[string]string),
		rooms:       make(map[string]map[string]*Client),
	}
}

// Run processes hub messages until Stop is called. It must run in its
// own goroutine; everything it touches is serialized through it.
func (h *Hub) Run() {
	h.log.Info("Hub is running")
	for {
		select {
		case <-h.quit:
			h.log.Info("Hub stopped")
			return
		case msg := <-h.messageChan:
			switch msg.kind {
			case kindRegister:
				h.handleRegister(msg.client)
			case kindUnregister:
				h.handleUnregister(msg.client)
			case kindEvent:
				h.dispatch(msg.client, msg.env)
			case kindExpire:
				h.handleExpire(msg.roomID)
			}
		}
	}
}

// Stop shuts the hub down. The message channel is never closed, so a
// read pump racing shutdown can still queue without panicking; its
// message is simply dropped. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Register queues a new connection for registration. Returns false if
// the hub queue is full.
func (h *Hub) Register(c *Client) bool {
	return h.queue(hubMessage{kind: kindRegister, client: c})
}

// SweepIdleRooms queues an expiry for every room idle longer than ttl
// and returns how many were queued. Called by the periodic sweep task.
func (h *Hub) SweepIdleRooms(ttl time.Duration) int {
	ids := h.collab.IdleRoomIDs(ttl)
	for _, id := range ids {
		h.queue(hubMessage{kind: kindExpire, roomID: id})
	}
	return len(ids)
}

// Stats reports live room and connection counts.
func (h *Hub) Stats() (rooms, connections int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.collab.RoomCount(), len(h.clients)
}

func (h *Hub) queue(msg hubMessage) bool {
	select {
	case <-h.quit:
		return false
	default:
	}
	select {
	case h.messageChan <- msg:
		return true
	default:
		h.log.Warn("Hub message channel full, dropping message")
		return false
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.log.WithField("conn_id", c.id).Info("Client registered")
}

func (h *Hub) handleUnregister(c *Client) {
	// A disconnect while mapped is an implicit leave for the remaining
	// members.
	h.vacate(c.id)

	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		// Deleting before closing makes a second unregister for the
		// same client a no-op.
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	h.log.WithField("conn_id", c.id).Info("Client unregistered")
}

func (h *Hub) dispatch(c *Client, env Envelope) {
	switch env.Event {
	case evtCreateRoom:
		h.handleCreateRoom(c, env)
	case evtJoinRoom:
		h.handleJoinRoom(c, env)
	case evtRejoinRoom:
		h.handleRejoinRoom(c, env)
	case evtSyncProject:
		h.handleSyncProject(c, env)
	case evtTaskAction:
		h.handleTaskAction(c, env)
	case evtCursorMove:
		h.handleCursorMove(c, env)
	case evtLeaveRoom:
		h.handleLeaveRoom(c, env)
	case evtCloseRoom:
		h.handleCloseRoom(c, env)
	default:
		h.log.WithFields(logrus.Fields{
			"conn_id": c.id,
			"event":   env.Event,
		}).Warn("Unknown event")
		h.reply(c, env.Ack, simpleReply{Success: false, Message: "Unknown event: " + env.Event})
	}
}

func (h *Hub) handleCreateRoom(c *Client, env Envelope) {
	var req createRoomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.reply(c, env.Ack, createRoomReply{Success: false, Message: "Invalid payload"})
		return
	}

	// Creating while still mapped vacates the old room first; create
	// itself has no failure path.
	h.vacate(c.id)

	roomID, code := h.collab.CreateRoom(c.id, req.Name, req.ProjectData)
	h.setMapping(c.id, roomID, c)

	h.reply(c, env.Ack, createRoomReply{
		Success: true,
		RoomID:  roomID,
		Code:    code,
		Message: "Room created with code: " + code,
	})
	h.journal.Record(domain.SessionEvent{
		RoomID:     roomID,
		RoomCode:   code,
		EventType:  domain.EventRoomCreated,
		MemberID:   c.id,
		MemberName: req.Name,
		OccurredAt: time.Now(),
	})
}

func (h *Hub) handleJoinRoom(c *Client, env Envelope) {
	var req joinRoomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.reply(c, env.Ack, joinRoomReply{Success: false, Message: "Invalid payload"})
		return
	}

	// Resolve the code before touching any state: a failed join must not
	// eject the connection from the room it is already in.
	if _, err := h.collab.GetRoomByCode(req.Code); err != nil {
		h.reply(c, env.Ack, joinRoomReply{Success: false, Message: "Room not found"})
		return
	}

	// A connection is a member of at most one room system-wide, so
	// joining while still mapped vacates the old room first.
	h.vacate(c.id)

	snap, err := h.collab.JoinRoom(req.Code, c.id, req.Name)
	if err != nil {
		h.reply(c, env.Ack, joinRoomReply{Success: false, Message: "Room not found"})
		return
	}
	h.setMapping(c.id, snap.ID, c)

	h.reply(c, env.Ack, joinRoomReply{
		Success:     true,
		RoomID:      snap.ID,
		ProjectData: snap.ProjectData,
		Members:     snap.Members,
		Message:     "Joined successfully",
	})
	h.broadcastRoom(snap.ID, evtMembersUpdated, membersUpdatedEvent{Members: snap.Members}, "")
	h.broadcastRoom(snap.ID, evtUserJoined, userJoinedEvent{ID: c.id, Name: req.Name}, c.id)
	h.recordMemberEvent(domain.EventMemberJoined, snap, c.id, req.Name)
}

func (h *Hub) handleRejoinRoom(c *Client, env Envelope) {
	var req joinRoomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.reply(c, env.Ack, joinRoomReply{Success: false, Message: "Invalid payload"})
		return
	}

	if _, err := h.collab.GetRoomByCode(req.Code); err != nil {
		h.reply(c, env.Ack, joinRoomReply{Success: false, Message: "Room not found or closed"})
		return
	}

	// The reconnecting identity may still be mapped to a stale room;
	// vacate it before rejoining so the old member list drops it.
	h.vacate(c.id)

	snap, isHost, err := h.collab.RejoinRoom(req.Code, c.id, req.Name)
	if err != nil {
		h.reply(c, env.Ack, joinRoomReply{Success: false, Message: "Room not found or closed"})
		return
	}
	h.setMapping(c.id, snap.ID, c)

	h.reply(c, env.Ack, joinRoomReply{
		Success:     true,
		RoomID:      snap.ID,
		ProjectData: snap.ProjectData,
		Members:     snap.Members,
		IsHost:      &isHost,
	})
	h.broadcastRoom(snap.ID, evtMembersUpdated, membersUpdatedEvent{Members: snap.Members}, "")
	h.broadcastRoom(snap.ID, evtUserJoined, userJoinedEvent{ID: c.id, Name: req.Name}, "")
	h.recordMemberEvent(domain.EventMemberJoined, snap, c.id, req.Name)
}

func (h *Hub) handleSyncProject(c *Client, env Envelope) {
	roomID, ok := h.roomOf(c.id)
	if !ok {
		h.reply(c, env.Ack, simpleReply{Success: false})
		return
	}
	var req syncProjectRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.reply(c, env.Ack, simpleReply{Success: false, Message: "Invalid payload"})
		return
	}

	h.collab.UpdateProjectData(roomID, req.ProjectData)
	h.broadcastRoom(roomID, evtProjectUpdated, projectUpdatedEvent{ProjectData: req.ProjectData}, c.id)
	h.reply(c, env.Ack, simpleReply{Success: true})
}

func (h *Hub) handleTaskAction(c *Client, env Envelope) {
	roomID, ok := h.roomOf(c.id)
	if !ok {
		h.reply(c, env.Ack, simpleReply{Success: false})
		return
	}
	var req taskActionRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.reply(c, env.Ack, simpleReply{Success: false, Message: "Invalid payload"})
		return
	}

	// Pure relay: the registry never sees task payloads.
	h.collab.Touch(roomID)
	h.broadcastRoom(roomID, evtTaskAction, taskActionEvent{
		Action:  req.Action,
		Payload: req.Payload,
		From:    c.id,
	}, c.id)
	h.reply(c, env.Ack, simpleReply{Success: true})
}

func (h *Hub) handleCursorMove(c *Client, env Envelope) {
	// No reply, mapped or not.
	roomID, ok := h.roomOf(c.id)
	if !ok {
		return
	}
	var req cursorMoveRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return
	}
	h.broadcastRoom(roomID, evtCursorUpdate, cursorUpdateEvent{
		ID:   c.id,
		X:    req.X,
		Y:    req.Y,
		Name: req.Name,
	}, c.id)
}

func (h *Hub) handleLeaveRoom(c *Client, env Envelope) {
	if _, ok := h.roomOf(c.id); !ok {
		h.reply(c, env.Ack, simpleReply{Success: false})
		return
	}
	h.reply(c, env.Ack, simpleReply{Success: true})
	h.vacate(c.id)
}

func (h *Hub) handleCloseRoom(c *Client, env Envelope) {
	roomID, ok := h.roomOf(c.id)
	if !ok {
		h.reply(c, env.Ack, simpleReply{Success: false, Message: "Not in a room"})
		return
	}
	snap, _ := h.collab.GetRoom(roomID)
	if err := h.collab.CloseRoom(roomID, c.id); err != nil {
		msg := "Only host can close room"
		if errors.Is(err, service.ErrRoomNotFound) {
			msg = "Room not found"
		}
		h.reply(c, env.Ack, simpleReply{Success: false, Message: msg})
		return
	}
	// The hub's own room map still holds the members until vacateRoom,
	// so the broadcast after registry deletion reaches everyone.
	h.broadcastRoom(roomID, evtRoomClosed, roomClosedEvent{Message: "Room was closed by host"}, "")
	h.vacateRoom(roomID)
	h.recordMemberEvent(domain.EventRoomClosed, snap, c.id, "")
	h.reply(c, env.Ack, simpleReply{Success: true})
}

// handleExpire tears down an idle room on behalf of the sweep task,
// using the same broadcast-then-vacate path as a host close.
func (h *Hub) handleExpire(roomID string) {
	snap, err := h.collab.GetRoom(roomID)
	if err != nil {
		if !errors.Is(err, service.ErrRoomNotFound) {
			h.log.WithError(err).WithField("room_id", roomID).Warn("Expire lookup failed")
		}
		return
	}
	h.broadcastRoom(roomID, evtRoomClosed, roomClosedEvent{Message: "Room closed due to inactivity"}, "")
	if h.collab.ExpireRoom(roomID) {
		h.vacateRoom(roomID)
		h.recordMemberEvent(domain.EventRoomExpired, snap, "", "")
	}
}

// vacate removes the connection from its current room, if any, and
// tells the remaining members about the departure. Used for explicit
// leaves, disconnects and the room switch before a create/join/rejoin,
// keeping the at-most-one-room invariant. The vacated connection itself
// gets nothing.
func (h *Hub) vacate(connID string) {
	roomID, ok := h.roomOf(connID)
	if !ok {
		return
	}
	snap, _ := h.collab.GetRoom(roomID)
	err := h.collab.LeaveRoom(roomID, connID)
	h.clearMapping(connID, roomID)
	if err != nil {
		return
	}
	h.broadcastRoom(roomID, evtMembersUpdated, membersUpdatedEvent{Members: h.collab.MembersList(roomID)}, "")
	h.broadcastRoom(roomID, evtUserLeft, userLeftEvent{ID: connID}, "")
	h.recordMemberEvent(domain.EventMemberLeft, snap, connID, "")
}

// vacateRoom clears the mapping of every connection in the room. The
// connections themselves stay open; clients are free to create or join
// another room afterwards.
func (h *Hub) vacateRoom(roomID string) {
	h.mu.Lock()
	for connID := range h.rooms[roomID] {
		delete(h.connToRoom, connID)
	}
	delete(h.rooms, roomID)
	h.mu.Unlock()
}

func (h *Hub) roomOf(connID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	roomID, ok := h.connToRoom[connID]
	return roomID, ok
}

func (h *Hub) setMapping(connID, roomID string, c *Client) {
	h.mu.Lock()
	h.connToRoom[connID] = roomID
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][connID] = c
	h.mu.Unlock()
}

func (h *Hub) clearMapping(connID, roomID string) {
	h.mu.Lock()
	delete(h.connToRoom, connID)
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
}

// reply sends a direct ack to the originating connection. Requests
// without an ack id are fire-and-forget and get nothing back.
func (h *Hub) reply(c *Client, ack uint64, payload interface{}) {
	if ack == 0 {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal reply")
		return
	}
	frame, err := json.Marshal(Envelope{Event: evtAck, Ack: ack, Data: data})
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal reply envelope")
		return
	}
	if !c.enqueue(frame) {
		h.log.WithField("conn_id", c.id).Warn("Client send queue full, dropping reply")
	}
}

// broadcastRoom fans an event out to every connection in the room,
// except excludeID when non-empty. The target list is snapshotted under
// the read lock; sends happen outside it and never block, so a member
// leaving mid-broadcast may still receive one final event.
func (h *Hub) broadcastRoom(roomID, event string, payload interface{}, excludeID string) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("Failed to marshal broadcast")
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("Failed to marshal broadcast envelope")
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for connID, client := range h.rooms[roomID] {
		if connID != excludeID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if !client.enqueue(frame) {
			h.log.WithFields(logrus.Fields{
				"conn_id": client.id,
				"event":   event,
			}).Warn("Client send queue full, dropping broadcast")
		}
	}
}

func (h *Hub) recordMemberEvent(eventType string, snap domain.RoomSnapshot, memberID, memberName string) {
	if memberName == "" {
		for _, m := range snap.Members {
			if m.ID == memberID {
				memberName = m.Name
				break
			}
		}
	}
	h.journal.Record(domain.SessionEvent{
		RoomID:     snap.ID,
		RoomCode:   snap.Code,
		EventType:  eventType,
		MemberID:   memberID,
		MemberName: memberName,
		OccurredAt: time.Now(),
	})
}
