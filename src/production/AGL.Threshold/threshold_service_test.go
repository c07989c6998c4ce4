package threshold

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	dispatch "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Dispatch"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

type fakeSampleRepo struct {
	mu      sync.Mutex
	samples []aglmodels.SensorData
}

func (f *fakeSampleRepo) InsertReadings(_ context.Context, samples []aglmodels.SensorData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, samples...)
	return nil
}

func (f *fakeSampleRepo) ListByDevice(_ context.Context, _ string, _ interfaces.SensorDataQuery) ([]aglmodels.SensorData, error) {
	return f.samples, nil
}

func (f *fakeSampleRepo) LatestByDevice(_ context.Context, _ string) ([]aglmodels.SensorData, error) {
	return f.samples, nil
}

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts []aglmodels.AlertLog
}

func (f *fakeAlertRepo) CreateAlert(_ context.Context, alert aglmodels.AlertLog) (*aglmodels.AlertLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return &alert, nil
}

func (f *fakeAlertRepo) ListByDevice(_ context.Context, _ string, _ interfaces.AlertQuery) ([]aglmodels.AlertLog, error) {
	return f.alerts, nil
}

func (f *fakeAlertRepo) Acknowledge(_ context.Context, _, _ string) (*aglmodels.AlertLog, error) {
	return nil, interfaces.ErrNotFound
}

type fakeConfigRepo struct {
	mu      sync.Mutex
	configs map[string][]aglmodels.SensorConfig
	loads   int
}

func (f *fakeConfigRepo) ListConfigs(_ context.Context, deviceID string) ([]aglmodels.SensorConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.configs[deviceID], nil
}

func (f *fakeConfigRepo) GetConfig(_ context.Context, _ string) (*aglmodels.SensorConfig, error) {
	return nil, interfaces.ErrNotFound
}
func (f *fakeConfigRepo) CreateConfig(_ context.Context, cfg aglmodels.SensorConfig) (*aglmodels.SensorConfig, error) {
	return &cfg, nil
}
func (f *fakeConfigRepo) UpdateConfig(_ context.Context, _ *aglmodels.SensorConfig) error { return nil }
func (f *fakeConfigRepo) DeleteConfig(_ context.Context, _ string) error                  { return nil }
func (f *fakeConfigRepo) CreateThreshold(_ context.Context, t aglmodels.SensorThreshold) (*aglmodels.SensorThreshold, error) {
	return &t, nil
}
func (f *fakeConfigRepo) GetThreshold(_ context.Context, _ string) (*aglmodels.SensorThreshold, error) {
	return nil, interfaces.ErrNotFound
}
func (f *fakeConfigRepo) UpdateThreshold(_ context.Context, _ *aglmodels.SensorThreshold) error {
	return nil
}
func (f *fakeConfigRepo) DeleteThreshold(_ context.Context, _ string) error { return nil }

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []dispatch.Request
	err      error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req dispatch.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.err
}

type testEnv struct {
	engine     *Engine
	samples    *fakeSampleRepo
	alerts     *fakeAlertRepo
	configs    *fakeConfigRepo
	dispatcher *fakeDispatcher
	clock      time.Time
}

func newTestEnv(t *testing.T, configs map[string][]aglmodels.SensorConfig) *testEnv {
	t.Helper()
	env := &testEnv{
		samples:    &fakeSampleRepo{},
		alerts:     &fakeAlertRepo{},
		configs:    &fakeConfigRepo{configs: configs},
		dispatcher: &fakeDispatcher{},
		clock:      time.Now(),
	}
	log := logger.NewLogger(&config.LoggingConfig{Level: "error", Format: "json"})
	env.engine = NewEngine(config.ThresholdConfig{
		Cooldown:       30 * time.Second,
		ConfigCacheTTL: 60 * time.Second,
	}, env.configs, env.samples, env.alerts, env.dispatcher, nil, log, nil)

	now := func() time.Time { return env.clock }
	env.engine.now = now
	env.engine.state.now = now
	env.engine.cache.now = now
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.clock = env.clock.Add(d)
}

func moistureConfig(deviceID string, thresholds ...aglmodels.SensorThreshold) map[string][]aglmodels.SensorConfig {
	return map[string][]aglmodels.SensorConfig{
		deviceID: {{
			ID:         "cfg-1",
			DeviceID:   deviceID,
			SensorType: aglmodels.SensorSoilMoisture,
			Enabled:    true,
			Mode:       aglmodels.SensorModeAuto,
			Thresholds: thresholds,
		}},
	}
}

func minThreshold(level aglmodels.ThresholdLevel, value float64, action string) aglmodels.SensorThreshold {
	return aglmodels.SensorThreshold{
		ID:             "t-" + string(level) + "-min",
		SensorConfigID: "cfg-1",
		Level:          level,
		Type:           aglmodels.ThresholdMin,
		Threshold:      value,
		Action:         action,
	}
}

func maxThreshold(level aglmodels.ThresholdLevel, value float64, action string) aglmodels.SensorThreshold {
	return aglmodels.SensorThreshold{
		ID:             "t-" + string(level) + "-max",
		SensorConfigID: "cfg-1",
		Level:          level,
		Type:           aglmodels.ThresholdMax,
		Threshold:      value,
		Action:         action,
	}
}

func TestProcessTelemetry_PersistsSamplesWithoutConfig(t *testing.T) {
	env := newTestEnv(t, nil)

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{
		"soilMoisture": 5.0,
		"temperature":  40.0,
		"unmapped":     1.0,
	})

	assert.Len(t, env.samples.samples, 2)
	assert.Empty(t, env.alerts.alerts)
	assert.Empty(t, env.dispatcher.requests)
}

func TestProcessTelemetry_UnrecognizedPayloadIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{
		"foo": "bar",
	})

	assert.Empty(t, env.samples.samples)
	assert.Zero(t, env.configs.loads)
}

func TestEvaluate_ViolationDispatchesAndAlerts(t *testing.T) {
	env := newTestEnv(t, moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 10, "START_IRRIGATION")))

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})

	require.Len(t, env.dispatcher.requests, 1)
	req := env.dispatcher.requests[0]
	assert.Equal(t, "START_IRRIGATION", req.Command)
	assert.Equal(t, aglmodels.CommandSourceAutomated, req.Source)
	assert.Equal(t, "LOW_MOISTURE", req.Reason)

	require.Len(t, env.alerts.alerts, 1)
	alert := env.alerts.alerts[0]
	assert.Equal(t, aglmodels.AlertBelow, alert.Direction)
	assert.Equal(t, "LOW_MOISTURE", alert.Reason)
	assert.Equal(t, 5.0, alert.Value)
	assert.Equal(t, 10.0, alert.Threshold)
}

func TestEvaluate_IdempotentWithinCooldown(t *testing.T) {
	env := newTestEnv(t, moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 10, "START_IRRIGATION")))

	for i := 0; i < 5; i++ {
		env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})
		env.advance(time.Second)
	}

	assert.Len(t, env.alerts.alerts, 1)
	assert.Len(t, env.dispatcher.requests, 1)
	assert.Len(t, env.samples.samples, 5)
}

func TestEvaluate_LatchBlocksAfterCooldownUntilRecovery(t *testing.T) {
	env := newTestEnv(t, moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 10, "START_IRRIGATION")))

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})
	env.advance(40 * time.Second)
	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})

	// Condition persisted: the latch holds even though cooldown elapsed.
	assert.Len(t, env.alerts.alerts, 1)
}

func TestEvaluate_RecoveryThenReViolationReAlerts(t *testing.T) {
	env := newTestEnv(t, moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 10, "START_IRRIGATION")))

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})
	env.advance(40 * time.Second)
	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 15.0})
	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})

	assert.Len(t, env.alerts.alerts, 2)
	assert.Len(t, env.dispatcher.requests, 2)
}

func TestEvaluate_RecoveryWithinCooldownStillBlocked(t *testing.T) {
	env := newTestEnv(t, moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 10, "START_IRRIGATION")))

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})
	env.advance(5 * time.Second)
	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 15.0})
	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})

	// Recovery cleared the latch but the 30s dispatch interval holds.
	assert.Len(t, env.alerts.alerts, 1)
}

func TestEvaluate_CriticalBeforeWarning(t *testing.T) {
	env := newTestEnv(t, moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 200, "START_IRRIGATION"),
		maxThreshold(aglmodels.ThresholdCritical, 100, "STOP_PUMP")))

	// 150 violates both the warning min (value < 200) and the critical max
	// (value > 100); only the critical acts.
	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 150.0})

	require.Len(t, env.alerts.alerts, 1)
	assert.Equal(t, aglmodels.ThresholdCritical, env.alerts.alerts[0].Level)
	require.Len(t, env.dispatcher.requests, 1)
	assert.Equal(t, "STOP_PUMP", env.dispatcher.requests[0].Command)
}

func TestEvaluate_AlertOnlySkipsDispatch(t *testing.T) {
	env := newTestEnv(t, moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 10, aglmodels.ActionAlertOnly)))

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})

	assert.Empty(t, env.dispatcher.requests)
	require.Len(t, env.alerts.alerts, 1)
	assert.Equal(t, aglmodels.ActionAlertOnly, env.alerts.alerts[0].Action)
}

func TestEvaluate_ManualModeSkipped(t *testing.T) {
	configs := moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 10, "START_IRRIGATION"))
	configs["dev-1"][0].Mode = aglmodels.SensorModeManual
	env := newTestEnv(t, configs)

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})

	assert.Empty(t, env.alerts.alerts)
	assert.Len(t, env.samples.samples, 1)
}

func TestEvaluate_DisabledConfigSkipped(t *testing.T) {
	configs := moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 10, "START_IRRIGATION"))
	configs["dev-1"][0].Enabled = false
	env := newTestEnv(t, configs)

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})

	assert.Empty(t, env.alerts.alerts)
}

func TestEvaluate_DispatchFailureStillRecordsAlert(t *testing.T) {
	env := newTestEnv(t, moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 10, "START_IRRIGATION")))
	env.dispatcher.err = assert.AnError

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 5.0})

	assert.Len(t, env.dispatcher.requests, 1)
	assert.Len(t, env.alerts.alerts, 1)
}

func TestConfigCache_TTLAndInvalidation(t *testing.T) {
	env := newTestEnv(t, moistureConfig("dev-1",
		minThreshold(aglmodels.ThresholdWarning, 10, "START_IRRIGATION")))

	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 50.0})
	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 50.0})
	assert.Equal(t, 1, env.configs.loads)

	env.engine.InvalidateConfig("dev-1")
	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 50.0})
	assert.Equal(t, 2, env.configs.loads)

	env.advance(61 * time.Second)
	env.engine.ProcessTelemetry(context.Background(), "dev-1", map[string]interface{}{"soilMoisture": 50.0})
	assert.Equal(t, 3, env.configs.loads)
}

func TestRuntimeState_ConcurrentAcquireSingleWinner(t *testing.T) {
	rs := newRuntimeState(30 * time.Second)
	key := stateKey("dev-1", aglmodels.SensorSoilMoisture, aglmodels.ThresholdWarning, aglmodels.ThresholdMin)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rs.TryAcquire(key) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.True(t, rs.Latched(key))
}
