package provisioning

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	aglbridge "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Bridge"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	dispatch "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Dispatch"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
	threshold "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Threshold"
)

// scenarioPublisher stands in for the bridge on both its publish surfaces.
type scenarioPublisher struct {
	mu     sync.Mutex
	topics []string
	bodies []interface{}
}

func (p *scenarioPublisher) Publish(topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.bodies = append(p.bodies, payload)
	return nil
}

func (p *scenarioPublisher) PublishToDevice(deviceID, command string, data interface{}) error {
	return p.Publish(aglbridge.DeviceCommandTopic(deviceID), map[string]interface{}{
		"command": command,
		"data":    data,
	})
}

type scenarioConfigRepo struct {
	configs map[string][]aglmodels.SensorConfig
}

func (r *scenarioConfigRepo) ListConfigs(_ context.Context, deviceID string) ([]aglmodels.SensorConfig, error) {
	return r.configs[deviceID], nil
}
func (r *scenarioConfigRepo) GetConfig(_ context.Context, _ string) (*aglmodels.SensorConfig, error) {
	return nil, interfaces.ErrNotFound
}
func (r *scenarioConfigRepo) CreateConfig(_ context.Context, cfg aglmodels.SensorConfig) (*aglmodels.SensorConfig, error) {
	return &cfg, nil
}
func (r *scenarioConfigRepo) UpdateConfig(_ context.Context, _ *aglmodels.SensorConfig) error {
	return nil
}
func (r *scenarioConfigRepo) DeleteConfig(_ context.Context, _ string) error { return nil }
func (r *scenarioConfigRepo) CreateThreshold(_ context.Context, t aglmodels.SensorThreshold) (*aglmodels.SensorThreshold, error) {
	return &t, nil
}
func (r *scenarioConfigRepo) GetThreshold(_ context.Context, _ string) (*aglmodels.SensorThreshold, error) {
	return nil, interfaces.ErrNotFound
}
func (r *scenarioConfigRepo) UpdateThreshold(_ context.Context, _ *aglmodels.SensorThreshold) error {
	return nil
}
func (r *scenarioConfigRepo) DeleteThreshold(_ context.Context, _ string) error { return nil }

type scenarioSampleRepo struct {
	samples []aglmodels.SensorData
}

func (r *scenarioSampleRepo) InsertReadings(_ context.Context, samples []aglmodels.SensorData) error {
	r.samples = append(r.samples, samples...)
	return nil
}
func (r *scenarioSampleRepo) ListByDevice(_ context.Context, _ string, _ interfaces.SensorDataQuery) ([]aglmodels.SensorData, error) {
	return r.samples, nil
}
func (r *scenarioSampleRepo) LatestByDevice(_ context.Context, _ string) ([]aglmodels.SensorData, error) {
	return r.samples, nil
}

type scenarioAlertRepo struct {
	alerts []aglmodels.AlertLog
}

func (r *scenarioAlertRepo) CreateAlert(_ context.Context, alert aglmodels.AlertLog) (*aglmodels.AlertLog, error) {
	r.alerts = append(r.alerts, alert)
	return &alert, nil
}
func (r *scenarioAlertRepo) ListByDevice(_ context.Context, _ string, _ interfaces.AlertQuery) ([]aglmodels.AlertLog, error) {
	return r.alerts, nil
}
func (r *scenarioAlertRepo) Acknowledge(_ context.Context, _, _ string) (*aglmodels.AlertLog, error) {
	return nil, interfaces.ErrNotFound
}

type scenarioCommandRepo struct {
	entries []aglmodels.CommandLog
}

func (r *scenarioCommandRepo) CreateCommandLog(_ context.Context, entry aglmodels.CommandLog) (*aglmodels.CommandLog, error) {
	r.entries = append(r.entries, entry)
	return &entry, nil
}
func (r *scenarioCommandRepo) ListByDevice(_ context.Context, _ string, _ interfaces.CommandLogQuery) ([]aglmodels.CommandLog, error) {
	return r.entries, nil
}

// The full device journey: first contact mints a pairing token, pairing
// binds the device to a farm and publishes set_owner, and a low soil
// moisture reading then produces exactly one alert and one irrigation
// command.
func TestProvisionPairTelemetryFlow(t *testing.T) {
	ctx := context.Background()
	log := logger.NewLogger(&config.LoggingConfig{Level: "error", Format: "json"})
	pub := &scenarioPublisher{}

	devices := newFakeDeviceRepo()
	tokens := &fakeTokenRepo{}
	svc := New(devices, tokens, pub, nil, nil, log, 24*time.Hour)

	result, err := svc.Provision(ctx, "SN1", "hw-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.PairingToken)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), result.ExpiresAt, time.Minute)
	require.Len(t, pub.topics, 1)
	assert.Equal(t, aglbridge.ProvisionResponseTopic(result.DeviceID), pub.topics[0])

	paired, err := svc.Pair(ctx, "SN1", result.PairingToken, "farm-1")
	require.NoError(t, err)
	assert.Equal(t, aglmodels.DeviceStatusPaired, paired.Status)
	assert.NotEmpty(t, paired.DeviceToken)

	tok, err := tokens.GetLatestBySerial(ctx, "SN1")
	require.NoError(t, err)
	assert.True(t, tok.Used)

	require.Len(t, pub.topics, 2)
	assert.Equal(t, aglbridge.FarmDeviceCommandTopic("farm-1", result.DeviceID), pub.topics[1])
	body, ok := pub.bodies[1].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "set_owner", body["command"])

	commands := &scenarioCommandRepo{}
	alerts := &scenarioAlertRepo{}
	samples := &scenarioSampleRepo{}
	configs := &scenarioConfigRepo{configs: map[string][]aglmodels.SensorConfig{
		result.DeviceID: {{
			ID:         "cfg-1",
			DeviceID:   result.DeviceID,
			SensorType: aglmodels.SensorSoilMoisture,
			Enabled:    true,
			Mode:       aglmodels.SensorModeAuto,
			Thresholds: []aglmodels.SensorThreshold{{
				ID:             "t-1",
				SensorConfigID: "cfg-1",
				Level:          aglmodels.ThresholdWarning,
				Type:           aglmodels.ThresholdMin,
				Threshold:      10,
				Action:         "START_IRRIGATION",
			}},
		}},
	}}

	dispatcher := dispatch.New(pub, nil, commands, log, nil)
	engine := threshold.NewEngine(config.ThresholdConfig{
		Cooldown:       30 * time.Second,
		ConfigCacheTTL: 60 * time.Second,
	}, configs, samples, alerts, dispatcher, nil, log, nil)

	engine.ProcessTelemetry(ctx, result.DeviceID, map[string]interface{}{"soilMoisture": 5.0})

	require.Len(t, samples.samples, 1)
	require.Len(t, alerts.alerts, 1)
	alert := alerts.alerts[0]
	assert.Equal(t, aglmodels.ThresholdWarning, alert.Level)
	assert.Equal(t, aglmodels.AlertBelow, alert.Direction)
	assert.Equal(t, "LOW_MOISTURE", alert.Reason)

	require.Len(t, commands.entries, 1)
	entry := commands.entries[0]
	assert.Equal(t, "START_IRRIGATION", entry.Command)
	assert.Equal(t, aglmodels.CommandSourceAutomated, entry.Source)
	assert.True(t, entry.Success)

	require.Len(t, pub.topics, 3)
	assert.True(t, strings.HasSuffix(pub.topics[2], "/cmd"))
	assert.Equal(t, aglbridge.DeviceCommandTopic(result.DeviceID), pub.topics[2])
}
