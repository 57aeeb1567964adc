package chat

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies every failure a handler can report. REST and socket
// entry points share the same kinds and map them to their own wire formats.
type ErrorKind int

const (
	ValidationError ErrorKind = iota
	NotAuthenticated
	Forbidden
	NotFound
	Conflict
	RoomNotEmpty
	InvalidOperation
)

func (k ErrorKind) String() string {
	switch k {
	case ValidationError:
		return "validation_error"
	case NotAuthenticated:
		return "not_authenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case RoomNotEmpty:
		return "room_not_empty"
	case InvalidOperation:
		return "invalid_operation"
	default:
		return "unknown"
	}
}

// StatusCode maps a kind onto the HTTP status the REST layer responds with.
func (k ErrorKind) StatusCode() int {
	switch k {
	case ValidationError:
		return http.StatusBadRequest
	case NotAuthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict, RoomNotEmpty:
		return http.StatusConflict
	case InvalidOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func errUsernameLength() *Error {
	return newError(ValidationError, "username must be between %d and %d characters", minNameLen, maxNameLen)
}

func errRoomIdLength() *Error {
	return newError(ValidationError, "room id must be between %d and %d characters", minNameLen, maxNameLen)
}

func errNotJoined() *Error {
	return newError(NotAuthenticated, "join before performing this action")
}

func errMuted() *Error {
	return newError(Forbidden, "you are muted")
}

func errRoomNotFound(roomId string) *Error {
	return newError(NotFound, "room %q not found", roomId)
}

func errRoomExists(roomId string) *Error {
	return newError(Conflict, "room %q already exists", roomId)
}

func errRoomNotEmpty(roomId string) *Error {
	return newError(RoomNotEmpty, "room %q is not empty", roomId)
}

func errDefaultRoom() *Error {
	return newError(InvalidOperation, "the default room cannot be deleted")
}
