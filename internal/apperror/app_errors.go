package apperror

import "errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")

	ErrAlreadyJoined   = errors.New("player already joined an open room")
	ErrRoomNotFound    = errors.New("room not found")
	ErrPlayerNotInRoom = errors.New("player is not in a room")

	ErrGameFinished     = errors.New("game is already finished")
	ErrGameIsNotStarted = errors.New("game is not started")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrWrongPhase       = errors.New("action is not allowed in the current phase")

	ErrWordLength      = errors.New("word length does not match the roll")
	ErrWordScript      = errors.New("word contains non-hiragana characters")
	ErrWordChain       = errors.New("word does not start with the required kana")
	ErrWordRepeated    = errors.New("word was already played")
	ErrForbiddenEnding = errors.New("word ends with the forbidden kana")
)
