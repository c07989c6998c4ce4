package aglmodels

import "time"

// DeviceStatus is the lifecycle state of a field device.
type DeviceStatus string

const (
	DeviceStatusPending  DeviceStatus = "pending"
	DeviceStatusPaired   DeviceStatus = "paired"
	DeviceStatusActive   DeviceStatus = "active"
	DeviceStatusDisabled DeviceStatus = "disabled"
)

// Device represents a field device (pump controller, sensor node).
// DeviceToken is the MQTT authentication secret and is only set while the
// device is paired or active; it is cleared on unpair.
type Device struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Serial          string       `json:"serial"`
	HardwareVersion string       `json:"hardware_version,omitempty"`
	DeviceToken     string       `json:"-"`
	Status          DeviceStatus `json:"status"`
	FarmID          string       `json:"farm_id,omitempty"`
	ProvisionedAt   *time.Time   `json:"provisioned_at,omitempty"`
	PairedAt        *time.Time   `json:"paired_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// CanPair reports whether the device is in a state that allows pairing.
func (d *Device) CanPair() bool {
	return d.Status == DeviceStatusPending || d.Status == DeviceStatusPaired
}

// PairingToken is a single-use credential minted during provisioning and
// redeemed during pairing. Expires 24h after creation.
type PairingToken struct {
	ID        string    `json:"id"`
	Serial    string    `json:"serial"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the token is past its expiry at the given time.
func (t *PairingToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
