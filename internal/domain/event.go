package domain

import "time"

// Session event types recorded in the journal.
const (
	EventRoomCreated  = "room_created"
	EventRoomClosed   = "room_closed"
	EventRoomExpired  = "room_expired"
	EventMemberJoined = "member_joined"
	EventMemberLeft   = "member_left"
)

// SessionEvent is a persisted audit record of room lifecycle activity.
// It is write-only from the broker's point of view: nothing is ever
// read back from it to rebuild room state.
type SessionEvent struct {
	ID         uint      `gorm:"primaryKey"`
	RoomID     string    `gorm:"size:36;index;not null"`
	RoomCode   string    `gorm:"size:8;index;not null"`
	EventType  string    `gorm:"size:32;not null"`
	MemberID   string    `gorm:"size:64"`
	MemberName string    `gorm:"size:191"`
	OccurredAt time.Time `gorm:"index;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}
