package game

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an Error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindLocked
	KindRateLimited
)

// Error is a rule violation with a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
	// RetryAfter is set for RateLimited and Locked errors.
	RetryAfter time.Duration
}

func (e *Error) Error() string { return e.Msg }

// RetryMinutes is RetryAfter rounded up to whole minutes.
func (e *Error) RetryMinutes() int {
	return minutesLeft(e.RetryAfter.Milliseconds())
}

var (
	ErrGameLocked     = &Error{Kind: KindConflict, Msg: "game is locked"}
	ErrNoTerritory    = &Error{Kind: KindNotFound, Msg: "territory not found"}
	ErrNoTeam         = &Error{Kind: KindNotFound, Msg: "team not found"}
	ErrNoRequest      = &Error{Kind: KindNotFound, Msg: "request not found"}
	ErrAlreadyOwned   = &Error{Kind: KindConflict, Msg: "territory already has an owner"}
	ErrNotAdjacent    = &Error{Kind: KindConflict, Msg: "territory must border one your team owns"}
	ErrClaimPending   = &Error{Kind: KindConflict, Msg: "a claim for this territory is already waiting for review"}
	ErrNotVerified    = &Error{Kind: KindConflict, Msg: "wait for the admin to assign a task"}
	ErrResolved       = &Error{Kind: KindConflict, Msg: "request was already resolved"}
	ErrAnswered       = &Error{Kind: KindConflict, Msg: "task was already answered"}
	ErrBadPin         = &Error{Kind: KindUnauthorized, Msg: "wrong pin"}
	ErrAnswerRequired = &Error{Kind: KindValidation, Msg: "answer is required"}
	ErrTaskRequired   = &Error{Kind: KindValidation, Msg: "task is required"}
)

// errUnchanged tells update to skip the commit.
var errUnchanged = errors.New("unchanged")

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

func validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func lockedFor(msg string, leftMs int64) *Error {
	return &Error{
		Kind:       KindLocked,
		Msg:        fmt.Sprintf("%s for %d more min", msg, minutesLeft(leftMs)),
		RetryAfter: time.Duration(leftMs) * time.Millisecond,
	}
}

func rateLimited(msg string, leftMs int64) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Msg:        fmt.Sprintf("%s, try again in %d min", msg, minutesLeft(leftMs)),
		RetryAfter: time.Duration(leftMs) * time.Millisecond,
	}
}

// minutesLeft rounds a positive millisecond span up to whole minutes.
func minutesLeft(ms int64) int {
	if ms <= 0 {
		return 0
	}
	return int((ms + 59999) / 60000)
}
