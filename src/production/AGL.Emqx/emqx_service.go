// Package emqx implements the broker's HTTP authentication and ACL hooks
// and the management-API client that keeps device credentials in sync.
//
// The broker calls POST /emqx/auth and /emqx/acl for every client connect
// and pub/sub attempt. Devices authenticate with their device token, users
// with an access JWT.
package emqx

import (
	"context"
	"strings"

	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	api_models "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models/api"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// Access is the broker's operation code: 1 subscribe, 2 publish.
type Access int

const (
	AccessSubscribe Access = 1
	AccessPublish   Access = 2
)

const deviceUsernamePrefix = "device:"

// TokenValidator verifies user JWTs presented as MQTT passwords.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*api_models.AccessClaims, error)
}

type Service struct {
	devices   interfaces.DeviceRepository
	farms     interfaces.FarmRepository
	validator TokenValidator
	log       *logger.Logger
}

func NewService(devices interfaces.DeviceRepository, farms interfaces.FarmRepository, validator TokenValidator, log *logger.Logger) *Service {
	return &Service{
		devices:   devices,
		farms:     farms,
		validator: validator,
		log:       log.WithComponent("emqx"),
	}
}

// Authenticate verifies an MQTT client's credentials. Devices connect with
// username device:{id} (or their serial) and their device token as the
// password; users connect with their user id and an access JWT.
func (s *Service) Authenticate(ctx context.Context, username, password string) bool {
	if device := s.lookupDevice(ctx, username); device != nil {
		if device.DeviceToken == "" || device.Status == aglmodels.DeviceStatusDisabled {
			return false
		}
		return device.DeviceToken == password
	}

	claims, err := s.validator.ValidateAccessToken(password)
	if err != nil {
		s.log.WithField("username", username).Debug("mqtt auth jwt rejected")
		return false
	}
	return claims.UserID == username
}

// CheckACL decides whether the client may perform the operation on the
// topic. Devices are confined to their own topic subtree (plus provisioning
// topics while pending); users are confined to devices of farms they own.
func (s *Service) CheckACL(ctx context.Context, username, topic string, access Access) bool {
	if strings.HasPrefix(username, deviceUsernamePrefix) || s.lookupDevice(ctx, username) != nil {
		return s.checkDeviceACL(ctx, username, topic)
	}
	return s.checkUserACL(ctx, username, topic)
}

func (s *Service) lookupDevice(ctx context.Context, username string) *aglmodels.Device {
	if id, ok := strings.CutPrefix(username, deviceUsernamePrefix); ok {
		if device, err := s.devices.GetDevice(ctx, id); err == nil {
			return device
		}
		return nil
	}
	if device, err := s.devices.GetDeviceBySerial(ctx, username); err == nil {
		return device
	}
	return nil
}

func (s *Service) checkDeviceACL(ctx context.Context, username, topic string) bool {
	device := s.lookupDevice(ctx, username)
	if device == nil || device.Status == aglmodels.DeviceStatusDisabled {
		return false
	}

	// A device owns its device/{id}/... subtree.
	if strings.HasPrefix(topic, "device/"+device.ID+"/") {
		return true
	}

	// Provisioning topics are open only while the device is unclaimed.
	if topic == "provision/new" || strings.HasPrefix(topic, "provision/") {
		return device.Status == aglmodels.DeviceStatusPending
	}

	return false
}

func (s *Service) checkUserACL(ctx context.Context, userID, topic string) bool {
	if topic == "user/"+userID+"/notifications" {
		return true
	}

	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "device" {
		return false
	}
	switch parts[len(parts)-1] {
	case "cmd", "resp", "status", "telemetry":
	default:
		return false
	}

	device, err := s.devices.GetDevice(ctx, parts[1])
	if err != nil || device.FarmID == "" {
		return false
	}
	farm, err := s.farms.GetFarm(ctx, device.FarmID)
	if err != nil {
		return false
	}
	return farm.OwnerID == userID
}
