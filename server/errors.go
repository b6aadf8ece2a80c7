package server

import "errors"

var (
	ErrRoomFull         = errors.New("room full")
	ErrRoomDisposed     = errors.New("room disposed")
	ErrProtocolIgnored  = errors.New("message ignored")
	ErrDuplicateSession = errors.New("session already in room")
)
