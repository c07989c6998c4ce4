// Package provisioning implements the device lifecycle state machine:
// pending -> paired -> active, with disabled reachable from anywhere and
// paired -> pending via unpair. It issues single-use pairing tokens over
// MQTT and redeems them on behalf of authenticated users.
package provisioning

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	aglbridge "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Bridge"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

const maxHardwareVersionLen = 50

// tokenBytes is the entropy of pairing tokens and device tokens.
const tokenBytes = 32

// BridgePublisher is the slice of the broker bridge this service needs.
type BridgePublisher interface {
	Publish(topic string, payload interface{}) error
}

// Broadcaster notifies connected clients.
type Broadcaster interface {
	BroadcastToDevice(deviceID, event string, payload interface{})
	Broadcast(event string, payload interface{})
}

// CredentialSync keeps broker-side device credentials in step with device
// tokens. Failures are logged, never fatal to the lifecycle transition.
type CredentialSync interface {
	UpsertDeviceCredential(ctx context.Context, deviceID, deviceToken string) error
	RemoveDeviceCredential(ctx context.Context, deviceID string) error
}

// ProvisionResult is returned to the device on its response topic.
type ProvisionResult struct {
	DeviceID     string    `json:"deviceId"`
	Serial       string    `json:"serial"`
	PairingToken string    `json:"pairingToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Created      bool      `json:"-"`
}

// PairResult is returned to the pairing user.
type PairResult struct {
	DeviceID    string                `json:"deviceId"`
	Serial      string                `json:"serial"`
	DeviceToken string                `json:"deviceToken"`
	Status      aglmodels.DeviceStatus `json:"status"`
}

// PairingStatus is the read-only projection served to status lookups.
type PairingStatus struct {
	DeviceID      string                 `json:"deviceId"`
	Serial        string                 `json:"serial"`
	Status        aglmodels.DeviceStatus `json:"status"`
	FarmID        string                 `json:"farmId,omitempty"`
	ProvisionedAt *time.Time             `json:"provisionedAt,omitempty"`
	PairedAt      *time.Time             `json:"pairedAt,omitempty"`
}

type Service struct {
	devices     interfaces.DeviceRepository
	tokens      interfaces.PairingTokenRepository
	publisher   BridgePublisher
	broadcaster Broadcaster
	creds       CredentialSync
	log         *logger.Logger
	tokenTTL    time.Duration

	now func() time.Time
}

func New(devices interfaces.DeviceRepository, tokens interfaces.PairingTokenRepository, publisher BridgePublisher, broadcaster Broadcaster, creds CredentialSync, log *logger.Logger, tokenTTL time.Duration) *Service {
	return &Service{
		devices:     devices,
		tokens:      tokens,
		publisher:   publisher,
		broadcaster: broadcaster,
		creds:       creds,
		log:         log.WithComponent("provisioning"),
		tokenTTL:    tokenTTL,
		now:         time.Now,
	}
}

// HandleProvisionMessage is the bridge listener for the provision/new topic.
func (s *Service) HandleProvisionMessage(msg aglbridge.Message) {
	serial, _ := msg.Payload["serial"].(string)
	hardwareVersion, _ := msg.Payload["hardwareVersion"].(string)

	result, err := s.Provision(context.Background(), serial, hardwareVersion)
	if err != nil {
		s.log.WithField("serial", serial).ErrorWithError(err, "provisioning request failed")
		return
	}
	if result == nil {
		s.log.WithField("serial", serial).Warn("provisioning request ignored")
	}
}

// Provision registers a device on first contact and mints a pairing token.
// It is idempotent by serial. An invalid serial, an over-long hardware
// version or an already-active device yields (nil, nil): the request is
// ignored, which is not a failure.
func (s *Service) Provision(ctx context.Context, serial, hardwareVersion string) (*ProvisionResult, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" || len(hardwareVersion) > maxHardwareVersionLen {
		return nil, nil
	}

	now := s.now().UTC()
	device, created, err := s.devices.LookupOrCreate(ctx, aglmodels.Device{
		Name:            serial,
		Serial:          serial,
		HardwareVersion: hardwareVersion,
		Status:          aglmodels.DeviceStatusPending,
		ProvisionedAt:   &now,
	})
	if err != nil {
		return nil, fmt.Errorf("provision %s: %w", serial, err)
	}

	if !created {
		if device.Status == aglmodels.DeviceStatusActive {
			return nil, nil
		}
		device.Status = aglmodels.DeviceStatusPending
		device.DeviceToken = ""
		device.ProvisionedAt = &now
		if hardwareVersion != "" {
			device.HardwareVersion = hardwareVersion
		}
		if err := s.devices.UpdateDevice(ctx, device); err != nil {
			return nil, fmt.Errorf("provision %s: %w", serial, err)
		}
	}

	secret, err := newSecret()
	if err != nil {
		return nil, fmt.Errorf("provision %s: %w", serial, err)
	}
	token, err := s.tokens.CreateToken(ctx, aglmodels.PairingToken{
		Serial:    serial,
		Token:     secret,
		ExpiresAt: now.Add(s.tokenTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("provision %s: %w", serial, err)
	}

	result := &ProvisionResult{
		DeviceID:     device.ID,
		Serial:       serial,
		PairingToken: token.Token,
		ExpiresAt:    token.ExpiresAt,
		Created:      created,
	}
	if err := s.publisher.Publish(aglbridge.ProvisionResponseTopic(device.ID), result); err != nil {
		return nil, fmt.Errorf("provision %s: %w", serial, err)
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast("deviceProvisioned", map[string]interface{}{
			"deviceId": device.ID,
			"serial":   serial,
			"status":   string(device.Status),
		})
		if created {
			s.broadcaster.Broadcast("deviceListUpdated", map[string]interface{}{"deviceId": device.ID})
		}
	}

	s.log.WithDevice(device.ID).WithFields(map[string]interface{}{
		"serial":  serial,
		"created": created,
	}).Info("device provisioned")
	return result, nil
}

// Pair redeems a pairing token under an authenticated user, binding the
// device to a farm and issuing its long-lived device token. Failure reasons
// are distinct; see errors.go for the check order.
func (s *Service) Pair(ctx context.Context, serial, pairingToken, farmID string) (*PairResult, error) {
	device, err := s.devices.GetDeviceBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("pair %s: %w", serial, err)
	}
	if !device.CanPair() {
		return nil, ErrInvalidStatus
	}

	token, err := s.tokens.GetLatestBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrNoPairingToken
		}
		return nil, fmt.Errorf("pair %s: %w", serial, err)
	}
	if token.Used {
		return nil, ErrTokenUsed
	}
	if token.Expired(s.now()) {
		return nil, ErrTokenExpired
	}
	if token.Token != pairingToken {
		return nil, ErrTokenMismatch
	}

	deviceToken, err := newSecret()
	if err != nil {
		return nil, fmt.Errorf("pair %s: %w", serial, err)
	}
	if err := s.tokens.MarkUsed(ctx, token.ID); err != nil {
		return nil, fmt.Errorf("pair %s: %w", serial, err)
	}

	now := s.now().UTC()
	device.DeviceToken = deviceToken
	device.FarmID = farmID
	device.Status = aglmodels.DeviceStatusPaired
	device.PairedAt = &now
	if err := s.devices.UpdateDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("pair %s: %w", serial, err)
	}

	// The device learns its owner and credential over the broker. Pairing
	// is already committed at this point, so a publish failure is logged
	// and the device retries via its provisioning flow.
	payload := map[string]interface{}{
		"command": "set_owner",
		"data": map[string]interface{}{
			"owner":       farmID,
			"deviceToken": deviceToken,
		},
		"timestamp": now.Format(time.RFC3339),
	}
	if err := s.publisher.Publish(aglbridge.FarmDeviceCommandTopic(farmID, device.ID), payload); err != nil {
		s.log.WithDevice(device.ID).ErrorWithError(err, "failed to publish set_owner")
	}

	s.syncCredential(ctx, device.ID, deviceToken)

	if s.broadcaster != nil {
		s.broadcaster.Broadcast("deviceListUpdated", map[string]interface{}{"deviceId": device.ID})
	}

	s.log.WithDevice(device.ID).WithField("farm_id", farmID).Info("device paired")
	return &PairResult{
		DeviceID:    device.ID,
		Serial:      device.Serial,
		DeviceToken: deviceToken,
		Status:      device.Status,
	}, nil
}

// Unpair releases the device back to pending. No status precondition: the
// operation is a reset, valid from any state.
func (s *Service) Unpair(ctx context.Context, deviceID string) error {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("unpair %s: %w", deviceID, err)
	}

	device.FarmID = ""
	device.DeviceToken = ""
	device.Status = aglmodels.DeviceStatusPending
	device.PairedAt = nil
	if err := s.devices.UpdateDevice(ctx, device); err != nil {
		return fmt.Errorf("unpair %s: %w", deviceID, err)
	}

	if s.creds != nil {
		if err := s.creds.RemoveDeviceCredential(ctx, deviceID); err != nil {
			s.log.WithDevice(deviceID).ErrorWithError(err, "failed to remove broker credential")
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast("deviceListUpdated", map[string]interface{}{"deviceId": deviceID})
	}

	s.log.WithDevice(deviceID).Info("device unpaired")
	return nil
}

// RegenerateToken replaces the device token without changing status. Only
// valid while the device is paired or active.
func (s *Service) RegenerateToken(ctx context.Context, deviceID string) (string, error) {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return "", ErrDeviceNotFound
		}
		return "", fmt.Errorf("regenerate token %s: %w", deviceID, err)
	}
	if device.Status != aglmodels.DeviceStatusPaired && device.Status != aglmodels.DeviceStatusActive {
		return "", ErrInvalidStatus
	}

	deviceToken, err := newSecret()
	if err != nil {
		return "", fmt.Errorf("regenerate token %s: %w", deviceID, err)
	}
	device.DeviceToken = deviceToken
	if err := s.devices.UpdateDevice(ctx, device); err != nil {
		return "", fmt.Errorf("regenerate token %s: %w", deviceID, err)
	}

	s.syncCredential(ctx, deviceID, deviceToken)
	s.log.WithDevice(deviceID).Info("device token regenerated")
	return deviceToken, nil
}

// MarkActive promotes a paired device to active. Called when a paired
// device first reports on its status topic with its new credential.
func (s *Service) MarkActive(ctx context.Context, deviceID string) error {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("mark active %s: %w", deviceID, err)
	}
	if device.Status != aglmodels.DeviceStatusPaired {
		return nil
	}

	device.Status = aglmodels.DeviceStatusActive
	if err := s.devices.UpdateDevice(ctx, device); err != nil {
		return fmt.Errorf("mark active %s: %w", deviceID, err)
	}
	s.log.WithDevice(deviceID).Info("device active")
	return nil
}

// Disable takes a device out of service from any state.
func (s *Service) Disable(ctx context.Context, deviceID string) error {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("disable %s: %w", deviceID, err)
	}

	device.Status = aglmodels.DeviceStatusDisabled
	device.DeviceToken = ""
	if err := s.devices.UpdateDevice(ctx, device); err != nil {
		return fmt.Errorf("disable %s: %w", deviceID, err)
	}

	if s.creds != nil {
		if err := s.creds.RemoveDeviceCredential(ctx, deviceID); err != nil {
			s.log.WithDevice(deviceID).ErrorWithError(err, "failed to remove broker credential")
		}
	}
	s.log.WithDevice(deviceID).Info("device disabled")
	return nil
}

// GetPairingStatus returns the lifecycle projection for a serial.
func (s *Service) GetPairingStatus(ctx context.Context, serial string) (*PairingStatus, error) {
	device, err := s.devices.GetDeviceBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("pairing status %s: %w", serial, err)
	}
	return &PairingStatus{
		DeviceID:      device.ID,
		Serial:        device.Serial,
		Status:        device.Status,
		FarmID:        device.FarmID,
		ProvisionedAt: device.ProvisionedAt,
		PairedAt:      device.PairedAt,
	}, nil
}

func (s *Service) syncCredential(ctx context.Context, deviceID, deviceToken string) {
	if s.creds == nil {
		return
	}
	if err := s.creds.UpsertDeviceCredential(ctx, deviceID, deviceToken); err != nil {
		s.log.WithDevice(deviceID).ErrorWithError(err, "failed to sync broker credential")
	}
}

func newSecret() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
