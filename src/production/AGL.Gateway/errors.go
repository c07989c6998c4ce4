package gateway

import "errors"

var (
	errInvalidToken = errors.New("invalid token")
	errUnknownUser  = errors.New("unknown user")
	errTokenRevoked = errors.New("token revoked")
)
