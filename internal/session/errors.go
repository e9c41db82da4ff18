package session

import "errors"

// Each sentinel's text is the wire code sent to the client.
var (
	ErrRoomIDRequired   = errf("roomIdRequired")
	ErrRoomFull         = errf("roomFull")
	ErrNotSeated        = errf("notSeated")
	ErrAlreadyJoined    = errf("alreadyJoined")
	ErrBadPayload       = errf("badPayload")
	ErrUnknownMessage   = errf("unknownMessage")
	ErrWrongPhase       = errf("wrongPhase")
	ErrNotYourTurn      = errf("notYourTurn")
	ErrIllegalMove      = errf("illegalMove")
	ErrMustResolveCheck = errf("mustResolveCheck")
	ErrInvalidSquare    = errf("invalidSquare")
	ErrInvalidSelection = errf("invalidSelection")
	ErrAlreadySelected  = errf("alreadySelected")
	ErrOfferPending     = errf("offerAlreadyPending")
	ErrNoOffer          = errf("noOffer")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error { return staticErr(s) }

// Code returns the wire code for err, or "internal" for anything that is
// not a session sentinel.
func Code(err error) string {
	var se staticErr
	if errors.As(err, &se) {
		return string(se)
	}
	return "internal"
}

// isMoveRejection reports whether err is sent as moveRejected rather than error.
func isMoveRejection(err error) bool {
	switch err {
	case ErrNotYourTurn, ErrIllegalMove, ErrMustResolveCheck, ErrInvalidSquare:
		return true
	}
	return false
}

// catalogKey maps a code to its message key.
func catalogKey(err error) string {
	code := Code(err)
	if isMoveRejection(err) && err != ErrInvalidSquare {
		return "reject." + code
	}
	return "error." + code
}
