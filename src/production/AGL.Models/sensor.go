package aglmodels

import "time"

// SensorType identifies a kind of measurement a device reports.
type SensorType string

const (
	SensorWaterPressure     SensorType = "water_pressure"
	SensorWaterFlow         SensorType = "water_flow"
	SensorPumpTemperature   SensorType = "pump_temperature"
	SensorSoilMoisture      SensorType = "soil_moisture"
	SensorElectricalCurrent SensorType = "electrical_current"
)

// PayloadToSensorType maps telemetry payload field names to sensor types.
// Payload fields not present here are ignored by the threshold engine.
var PayloadToSensorType = map[string]SensorType{
	"pressure":     SensorWaterPressure,
	"flow":         SensorWaterFlow,
	"temperature":  SensorPumpTemperature,
	"soilMoisture": SensorSoilMoisture,
	"current":      SensorElectricalCurrent,
}

// ReasonPair holds the human reason codes for the two violation directions.
type ReasonPair struct {
	BelowMin string
	AboveMax string
}

// SensorReasonMap maps each sensor type to its violation reason codes.
var SensorReasonMap = map[SensorType]ReasonPair{
	SensorSoilMoisture:      {BelowMin: "LOW_MOISTURE", AboveMax: "HIGH_MOISTURE"},
	SensorPumpTemperature:   {BelowMin: "LOW_TEMPERATURE", AboveMax: "OVER_TEMPERATURE"},
	SensorWaterPressure:     {BelowMin: "LOW_PRESSURE", AboveMax: "HIGH_PRESSURE"},
	SensorWaterFlow:         {BelowMin: "LOW_FLOW", AboveMax: "HIGH_FLOW"},
	SensorElectricalCurrent: {BelowMin: "LOW_CURRENT", AboveMax: "OVERCURRENT"},
}

// SensorMode controls whether the threshold engine acts on readings.
type SensorMode string

const (
	SensorModeAuto   SensorMode = "auto"
	SensorModeManual SensorMode = "manual"
)

// ThresholdLevel is the severity of a configured threshold.
type ThresholdLevel string

const (
	ThresholdWarning  ThresholdLevel = "warning"
	ThresholdCritical ThresholdLevel = "critical"
)

// ThresholdType is the comparison direction of a threshold.
type ThresholdType string

const (
	ThresholdMin ThresholdType = "min"
	ThresholdMax ThresholdType = "max"
)

// ActionAlertOnly is the sentinel action meaning "record an alert, do not
// dispatch a command".
const ActionAlertOnly = "ALERT_ONLY"

// SensorConfig holds per-device, per-sensor-type evaluation settings.
// Unique per (DeviceID, SensorType).
type SensorConfig struct {
	ID         string            `json:"id"`
	DeviceID   string            `json:"device_id"`
	SensorType SensorType        `json:"sensor_type"`
	Enabled    bool              `json:"enabled"`
	Mode       SensorMode        `json:"mode"`
	Unit       string            `json:"unit,omitempty"`
	Thresholds []SensorThreshold `json:"thresholds,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SensorThreshold is one configured limit. Unique per
// (SensorConfigID, Level, Type).
type SensorThreshold struct {
	ID             string         `json:"id"`
	SensorConfigID string         `json:"sensor_config_id"`
	Level          ThresholdLevel `json:"level"`
	Type           ThresholdType  `json:"type"`
	Threshold      float64        `json:"threshold"`
	Action         string         `json:"action"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Violated reports whether the given value violates this threshold.
func (t *SensorThreshold) Violated(value float64) bool {
	switch t.Type {
	case ThresholdMin:
		return value < t.Threshold
	case ThresholdMax:
		return value > t.Threshold
	}
	return false
}

// SensorData is a raw telemetry sample, appended for every recognized
// reading regardless of threshold configuration.
type SensorData struct {
	ID         string     `json:"id,omitempty" bson:"_id,omitempty"`
	DeviceID   string     `json:"device_id" bson:"device_id"`
	SensorType SensorType `json:"sensor_type" bson:"sensor_type"`
	Value      float64    `json:"value" bson:"value"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
}

// Reading is one decoded (sensor type, value) pair from a telemetry payload.
type Reading struct {
	SensorType SensorType
	Value      float64
}

// DecodeReadings translates a telemetry payload into readings using
// PayloadToSensorType. Unrecognized and non-numeric fields are skipped.
func DecodeReadings(payload map[string]interface{}) []Reading {
	var readings []Reading
	for field, sensorType := range PayloadToSensorType {
		raw, ok := payload[field]
		if !ok || raw == nil {
			continue
		}
		value, ok := toFloat(raw)
		if !ok {
			continue
		}
		readings = append(readings, Reading{SensorType: sensorType, Value: value})
	}
	return readings
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}
