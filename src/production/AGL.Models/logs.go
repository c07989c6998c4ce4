package aglmodels

import "time"

// AlertDirection records which side of the threshold the value was on.
type AlertDirection string

const (
	AlertAbove AlertDirection = "above"
	AlertBelow AlertDirection = "below"
)

// AlertLog is an immutable record of a detected threshold violation.
// Only Acknowledged is mutable after creation.
type AlertLog struct {
	ID           string         `json:"id"`
	DeviceID     string         `json:"device_id"`
	SensorType   SensorType     `json:"sensor_type"`
	Value        float64        `json:"value"`
	Threshold    float64        `json:"threshold"`
	Level        ThresholdLevel `json:"level"`
	Direction    AlertDirection `json:"direction"`
	Action       string         `json:"action,omitempty"`
	Reason       string         `json:"reason"`
	Acknowledged bool           `json:"acknowledged"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CommandSource distinguishes how a command was initiated.
type CommandSource string

const (
	CommandSourceManual    CommandSource = "manual"
	CommandSourceAutomated CommandSource = "automated"
	CommandSourceSchedule  CommandSource = "schedule"
)

// CommandLog is an immutable record of every dispatched command, whether it
// succeeded or not.
type CommandLog struct {
	ID           string                 `json:"id"`
	DeviceID     string                 `json:"device_id"`
	Command      string                 `json:"command"`
	Params       map[string]interface{} `json:"params,omitempty"`
	Source       CommandSource          `json:"source"`
	SensorType   SensorType             `json:"sensor_type,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
