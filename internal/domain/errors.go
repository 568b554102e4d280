package domain

import "errors"

// Kind classifies failures so callers can branch exhaustively.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindInternal     Kind = "internal"
)

// Error is a domain failure with a kind and a stable machine-readable code.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

var (
	ErrPlateRequired        = &Error{Kind: KindValidation, Code: "plate_required", Msg: "plate is required"}
	ErrInvalidDay           = &Error{Kind: KindValidation, Code: "invalid_day", Msg: "day must be formatted as YYYY-MM-DD"}
	ErrTicketNotFound       = &Error{Kind: KindNotFound, Code: "ticket_not_found", Msg: "ticket not found"}
	ErrTicketAlreadySettled = &Error{Kind: KindConflict, Code: "ticket_already_settled", Msg: "ticket already settled"}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Code: "unauthorized", Msg: "invalid secret"}
	// ErrDuplicateTicketID is raised by stores when an insert collides on id.
	ErrDuplicateTicketID = &Error{Kind: KindInternal, Code: "duplicate_ticket_id", Msg: "duplicate ticket id"}
)

// KindOf reports the kind of err. Errors that are not domain errors are internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
