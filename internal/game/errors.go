package game

import "errors"

// Every error here is recoverable at the connection boundary: the protocol
// handler turns it into a {success:false, error} ack for the caller and
// nothing else is affected.
var (
	ErrAlreadyInRoom           = errors.New("already in a room")
	ErrRoomNotFound            = errors.New("room not found")
	ErrRoomFull                = errors.New("room is full")
	ErrPlayerNotInRoom         = errors.New("player is not a member of this room")
	ErrPlayerNotFound          = errors.New("player not found")
	ErrGameFull                = errors.New("game already has the maximum number of players")
	ErrAllRoundsCompleted      = errors.New("all rounds have been played")
	ErrGameNotFinished         = errors.New("game is not finished")
	ErrCodeGenerationExhausted = errors.New("could not allocate a unique room code")
	ErrServerClosed            = errors.New("server is shutting down")
)

var (
	errBadPayload  = errors.New("invalid payload")
	errUnknownType = errors.New("unknown message type")
)
