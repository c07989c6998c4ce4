// Package threshold evaluates telemetry readings against per-device sensor
// thresholds, raises alerts, and autonomously dispatches corrective commands
// with latch/cooldown anti-spam protection.
package threshold

import (
	"context"
	"sort"
	"time"

	aglbridge "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Bridge"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	dispatch "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Dispatch"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	metrics "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Metrics"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// Broadcaster notifies clients subscribed to a device room.
type Broadcaster interface {
	BroadcastToDevice(deviceID, event string, payload interface{})
}

// CommandDispatcher is the façade the engine sends corrective commands
// through.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) error
}

type Engine struct {
	samples     interfaces.SensorDataRepository
	alerts      interfaces.AlertLogRepository
	cache       *configCache
	state       *runtimeState
	dispatcher  CommandDispatcher
	broadcaster Broadcaster
	log         *logger.Logger
	metrics     *metrics.Metrics

	now func() time.Time
}

func NewEngine(cfg config.ThresholdConfig, configs interfaces.SensorConfigRepository, samples interfaces.SensorDataRepository, alerts interfaces.AlertLogRepository, dispatcher CommandDispatcher, broadcaster Broadcaster, log *logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		samples:     samples,
		alerts:      alerts,
		cache:       newConfigCache(configs, cfg.ConfigCacheTTL),
		state:       newRuntimeState(cfg.Cooldown),
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		log:         log.WithComponent("threshold"),
		metrics:     m,
		now:         time.Now,
	}
}

// InvalidateConfig drops the cached sensor configuration for a device.
// Called by the sensor CRUD endpoints after any config or threshold change.
func (e *Engine) InvalidateConfig(deviceID string) {
	e.cache.Invalidate(deviceID)
}

// HandleTelemetry is the bridge listener for device/+/telemetry.
func (e *Engine) HandleTelemetry(msg aglbridge.Message) {
	if msg.DeviceID == aglbridge.UnknownDevice {
		return
	}
	e.ProcessTelemetry(context.Background(), msg.DeviceID, msg.Payload)
}

// ProcessTelemetry decodes a telemetry payload, persists raw samples, and
// evaluates every recognized reading against the device's thresholds.
func (e *Engine) ProcessTelemetry(ctx context.Context, deviceID string, payload map[string]interface{}) {
	readings := aglmodels.DecodeReadings(payload)
	if len(readings) == 0 {
		return
	}

	now := e.now().UTC()
	samples := make([]aglmodels.SensorData, 0, len(readings))
	for _, r := range readings {
		samples = append(samples, aglmodels.SensorData{
			DeviceID:   deviceID,
			SensorType: r.SensorType,
			Value:      r.Value,
			CreatedAt:  now,
		})
	}
	if err := e.samples.InsertReadings(ctx, samples); err != nil {
		e.log.WithDevice(deviceID).ErrorWithError(err, "failed to store raw samples")
	}

	if e.broadcaster != nil {
		e.broadcaster.BroadcastToDevice(deviceID, "deviceData", map[string]interface{}{
			"type":      "telemetry",
			"deviceId":  deviceID,
			"payload":   payload,
			"timestamp": now.Format(time.RFC3339),
		})
	}

	configs, err := e.cache.Get(ctx, deviceID)
	if err != nil {
		e.log.WithDevice(deviceID).ErrorWithError(err, "failed to load sensor configs")
		return
	}

	for _, r := range readings {
		cfg := selectConfig(configs, r.SensorType)
		if cfg == nil {
			continue
		}
		e.evaluate(ctx, deviceID, cfg, r.Value)
	}
}

// selectConfig picks the enabled auto-mode config for a sensor type.
func selectConfig(configs []aglmodels.SensorConfig, sensorType aglmodels.SensorType) *aglmodels.SensorConfig {
	for i := range configs {
		c := &configs[i]
		if c.SensorType == sensorType && c.Enabled && c.Mode == aglmodels.SensorModeAuto && len(c.Thresholds) > 0 {
			return c
		}
	}
	return nil
}

// evaluate runs one reading against every threshold of its sensor config.
// Critical thresholds are checked before warnings and at most one violation
// is acted on per reading. Non-violated thresholds have their latches
// cleared first so recovery is detected regardless of what the violated
// branch decides.
func (e *Engine) evaluate(ctx context.Context, deviceID string, cfg *aglmodels.SensorConfig, value float64) {
	sorted := make([]aglmodels.SensorThreshold, len(cfg.Thresholds))
	copy(sorted, cfg.Thresholds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Level == aglmodels.ThresholdCritical && sorted[j].Level != aglmodels.ThresholdCritical
	})

	var violated []aglmodels.SensorThreshold
	for _, t := range sorted {
		if t.Violated(value) {
			violated = append(violated, t)
		} else {
			e.state.Clear(stateKey(deviceID, cfg.SensorType, t.Level, t.Type))
		}
	}
	if len(violated) == 0 {
		return
	}

	t := violated[0]
	key := stateKey(deviceID, cfg.SensorType, t.Level, t.Type)
	if !e.state.TryAcquire(key) {
		e.log.WithDevice(deviceID).WithFields(map[string]interface{}{
			"sensor_type": string(cfg.SensorType),
			"level":       string(t.Level),
		}).Debug("anti-spam blocked dispatch")
		return
	}

	direction := aglmodels.AlertBelow
	if t.Type == aglmodels.ThresholdMax {
		direction = aglmodels.AlertAbove
	}
	reason := violationReason(cfg.SensorType, direction)

	if t.Action != aglmodels.ActionAlertOnly {
		err := e.dispatcher.Dispatch(ctx, dispatch.Request{
			DeviceID: deviceID,
			Command:  t.Action,
			Params: map[string]interface{}{
				"reason":     reason,
				"sensorType": string(cfg.SensorType),
				"level":      string(t.Level),
				"value":      value,
				"threshold":  t.Threshold,
			},
			Source:     aglmodels.CommandSourceAutomated,
			SensorType: cfg.SensorType,
			Reason:     reason,
		})
		if err == nil && e.broadcaster != nil {
			e.broadcaster.BroadcastToDevice(deviceID, "deviceData", map[string]interface{}{
				"type":       "command_dispatched",
				"command":    t.Action,
				"sensorType": string(cfg.SensorType),
				"level":      string(t.Level),
				"value":      value,
				"threshold":  t.Threshold,
				"reason":     reason,
			})
		}
	}

	alert := aglmodels.AlertLog{
		DeviceID:   deviceID,
		SensorType: cfg.SensorType,
		Value:      value,
		Threshold:  t.Threshold,
		Level:      t.Level,
		Direction:  direction,
		Action:     t.Action,
		Reason:     reason,
	}
	if _, err := e.alerts.CreateAlert(ctx, alert); err != nil {
		e.log.WithDevice(deviceID).ErrorWithError(err, "failed to record alert")
	}
	if e.metrics != nil {
		e.metrics.AlertsRecorded.WithLabelValues(string(cfg.SensorType), string(t.Level)).Inc()
	}
	if e.broadcaster != nil {
		e.broadcaster.BroadcastToDevice(deviceID, "deviceData", map[string]interface{}{
			"type":       "alert",
			"sensorType": string(cfg.SensorType),
			"value":      value,
			"threshold":  t.Threshold,
			"level":      string(t.Level),
			"direction":  string(direction),
			"action":     t.Action,
			"reason":     reason,
		})
	}

	e.log.WithDevice(deviceID).WithFields(map[string]interface{}{
		"sensor_type": string(cfg.SensorType),
		"level":       string(t.Level),
		"value":       value,
		"threshold":   t.Threshold,
		"action":      t.Action,
	}).Info("threshold alert")
}

func violationReason(sensorType aglmodels.SensorType, direction aglmodels.AlertDirection) string {
	pair, ok := aglmodels.SensorReasonMap[sensorType]
	if !ok {
		return "THRESHOLD_VIOLATION"
	}
	if direction == aglmodels.AlertBelow {
		return pair.BelowMin
	}
	return pair.AboveMax
}
