package service

import "errors"

var (
	// ErrRoomNotFound means a code or room id does not resolve to a
	// live room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotInRoom means an action requiring a room was invoked by a
	// connection that is not mapped to one.
	ErrNotInRoom = errors.New("not in a room")
	// ErrNotHost means close_room was invoked by a non-host member.
	ErrNotHost = errors.New("only host can close room")
)
