package errors

import "errors"

var (
	ErrInvalidCredentials      = errors.New("invalid username or password")
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrInvalidRefreshToken     = errors.New("invalid refresh token")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrSigningKeyMisconfigured = errors.New("signing key misconfigured")
	ErrUserExists              = errors.New("user already exists")
	ErrUserNotFound            = errors.New("user not found")
	ErrNilUser                 = errors.New("user is nil")
	ErrTokenNotFound           = errors.New("refresh token not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInternal                = errors.New("internal error")
)
