package provisioning

import "errors"

// Pairing failures are distinct so the mobile flow can show the user what
// actually went wrong. They are checked in a fixed order: device lookup,
// device status, token existence, token used, token expired, token mismatch.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidStatus  = errors.New("device status does not allow this operation")
	ErrNoPairingToken = errors.New("no pairing token exists for this serial")
	ErrTokenUsed      = errors.New("pairing token already used")
	ErrTokenExpired   = errors.New("pairing token expired")
	ErrTokenMismatch  = errors.New("pairing token mismatch")
)
