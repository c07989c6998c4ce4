package emqx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	api_models "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models/api"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

type fakeDeviceRepo struct {
	devices map[string]*aglmodels.Device
}

func (f *fakeDeviceRepo) GetDevice(_ context.Context, id string) (*aglmodels.Device, error) {
	if d, ok := f.devices[id]; ok {
		return d, nil
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeDeviceRepo) GetDeviceBySerial(_ context.Context, serial string) (*aglmodels.Device, error) {
	for _, d := range f.devices {
		if d.Serial == serial {
			return d, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeDeviceRepo) ListDevices(_ context.Context, _ string) ([]aglmodels.Device, error) {
	return nil, nil
}
func (f *fakeDeviceRepo) LookupOrCreate(_ context.Context, d aglmodels.Device) (*aglmodels.Device, bool, error) {
	return &d, false, nil
}
func (f *fakeDeviceRepo) UpdateDevice(_ context.Context, _ *aglmodels.Device) error { return nil }

type fakeFarmRepo struct {
	farms map[string]*aglmodels.Farm
}

func (f *fakeFarmRepo) GetFarm(_ context.Context, id string) (*aglmodels.Farm, error) {
	if farm, ok := f.farms[id]; ok {
		return farm, nil
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeFarmRepo) ListByOwner(_ context.Context, _ string) ([]aglmodels.Farm, error) {
	return nil, nil
}

func (f *fakeFarmRepo) CreateFarm(_ context.Context, farm aglmodels.Farm) (*aglmodels.Farm, error) {
	return &farm, nil
}

type fakeValidator struct {
	claims *api_models.AccessClaims
	err    error
}

func (f *fakeValidator) ValidateAccessToken(string) (*api_models.AccessClaims, error) {
	return f.claims, f.err
}

func newTestService(devices map[string]*aglmodels.Device, farms map[string]*aglmodels.Farm, v TokenValidator) *Service {
	log := logger.NewLogger(&config.LoggingConfig{Level: "error", Format: "json"})
	if v == nil {
		v = &fakeValidator{err: errors.New("no jwt")}
	}
	return NewService(&fakeDeviceRepo{devices: devices}, &fakeFarmRepo{farms: farms}, v, log)
}

func activeDevice(id, farmID string) *aglmodels.Device {
	return &aglmodels.Device{
		ID:          id,
		Serial:      "SN-" + id,
		DeviceToken: "secret-" + id,
		Status:      aglmodels.DeviceStatusActive,
		FarmID:      farmID,
	}
}

func TestAuthenticate_DeviceToken(t *testing.T) {
	svc := newTestService(map[string]*aglmodels.Device{
		"dev-1": activeDevice("dev-1", ""),
	}, nil, nil)
	ctx := context.Background()

	assert.True(t, svc.Authenticate(ctx, "device:dev-1", "secret-dev-1"))
	assert.False(t, svc.Authenticate(ctx, "device:dev-1", "wrong"))
	assert.False(t, svc.Authenticate(ctx, "device:missing", "secret"))

	// serial works as username too
	assert.True(t, svc.Authenticate(ctx, "SN-dev-1", "secret-dev-1"))
}

func TestAuthenticate_DisabledDeviceRejected(t *testing.T) {
	d := activeDevice("dev-1", "")
	d.Status = aglmodels.DeviceStatusDisabled
	svc := newTestService(map[string]*aglmodels.Device{"dev-1": d}, nil, nil)

	assert.False(t, svc.Authenticate(context.Background(), "device:dev-1", "secret-dev-1"))
}

func TestAuthenticate_PendingDeviceWithoutTokenRejected(t *testing.T) {
	d := &aglmodels.Device{ID: "dev-1", Serial: "SN-dev-1", Status: aglmodels.DeviceStatusPending}
	svc := newTestService(map[string]*aglmodels.Device{"dev-1": d}, nil, nil)

	assert.False(t, svc.Authenticate(context.Background(), "device:dev-1", ""))
}

func TestAuthenticate_UserJWT(t *testing.T) {
	svc := newTestService(nil, nil, &fakeValidator{claims: &api_models.AccessClaims{UserID: "u1"}})

	assert.True(t, svc.Authenticate(context.Background(), "u1", "a.jwt.token"))
	assert.False(t, svc.Authenticate(context.Background(), "u2", "a.jwt.token"))
}

func TestCheckACL_DeviceOwnSubtree(t *testing.T) {
	svc := newTestService(map[string]*aglmodels.Device{
		"dev-1": activeDevice("dev-1", ""),
	}, nil, nil)
	ctx := context.Background()

	assert.True(t, svc.CheckACL(ctx, "device:dev-1", "device/dev-1/telemetry", AccessPublish))
	assert.True(t, svc.CheckACL(ctx, "device:dev-1", "device/dev-1/cmd", AccessSubscribe))
	assert.False(t, svc.CheckACL(ctx, "device:dev-1", "device/dev-2/cmd", AccessSubscribe))
}

func TestCheckACL_ProvisioningOnlyWhilePending(t *testing.T) {
	pending := &aglmodels.Device{ID: "dev-1", Serial: "SN-dev-1", Status: aglmodels.DeviceStatusPending}
	svc := newTestService(map[string]*aglmodels.Device{
		"dev-1": pending,
		"dev-2": activeDevice("dev-2", ""),
	}, nil, nil)
	ctx := context.Background()

	assert.True(t, svc.CheckACL(ctx, "device:dev-1", "provision/new", AccessPublish))
	assert.False(t, svc.CheckACL(ctx, "device:dev-2", "provision/new", AccessPublish))
}

func TestCheckACL_UserFarmOwnership(t *testing.T) {
	farms := map[string]*aglmodels.Farm{
		"farm-1": {ID: "farm-1", OwnerID: "u1"},
	}
	svc := newTestService(map[string]*aglmodels.Device{
		"dev-1": activeDevice("dev-1", "farm-1"),
		"dev-2": activeDevice("dev-2", ""),
	}, farms, &fakeValidator{claims: &api_models.AccessClaims{UserID: "u1"}})
	ctx := context.Background()

	assert.True(t, svc.CheckACL(ctx, "u1", "device/dev-1/telemetry", AccessSubscribe))
	assert.True(t, svc.CheckACL(ctx, "u1", "device/dev-1/cmd", AccessPublish))
	assert.False(t, svc.CheckACL(ctx, "u2", "device/dev-1/telemetry", AccessSubscribe))
	assert.False(t, svc.CheckACL(ctx, "u1", "device/dev-2/telemetry", AccessSubscribe))
	assert.False(t, svc.CheckACL(ctx, "u1", "device/dev-1/config", AccessSubscribe))
}

func TestCheckACL_UserNotificationTopic(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	assert.True(t, svc.CheckACL(context.Background(), "u1", "user/u1/notifications", AccessSubscribe))
	assert.False(t, svc.CheckACL(context.Background(), "u1", "user/u2/notifications", AccessSubscribe))
}
