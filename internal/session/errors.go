package session

import "errors"

// ErrCorruptState marks persisted state that cannot be decoded.
var ErrCorruptState = errors.New("session: corrupt persisted state")

// defaultLoginMessage is shown when the backend gives no better reason.
const defaultLoginMessage = "login failed"

// AuthenticationError is returned by Login. Message is safe to show to the user.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "authentication: " + e.Message
	}
	return "authentication: " + e.Message + ": " + e.Err.Error()
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// userFacing is implemented by backend errors carrying a message meant for
// the user (API rejections, transport failures).
type userFacing interface {
	UserMessage() string
}

func loginFailure(err error) *AuthenticationError {
	msg := defaultLoginMessage
	var uf userFacing
	if errors.As(err, &uf) {
		if m := uf.UserMessage(); m != "" {
			msg = m
		}
	}
	return &AuthenticationError{Message: msg, Err: err}
}
