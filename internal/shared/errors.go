package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized is the only failure detail exposed to end users;
	// full context stays in operator logs.
	ErrNotAuthorized = errors.New("not authorized")
)

// UserSafeMessage maps internal errors to a message safe to show end users.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record could not be found."
	case errors.Is(err, ErrNotAuthorized):
		return "You are not authorized to perform this action."
	default:
		return "Something went wrong. Please try again."
	}
}
