package aglmodels

import "time"

// ScheduleType distinguishes one-off schedules from recurring ones.
type ScheduleType string

const (
	ScheduleOneTime   ScheduleType = "one_time"
	ScheduleRecurring ScheduleType = "recurring"
)

// DeviceSchedule describes a time-based command. Exactly one of DeviceID and
// FarmID is set; a farm schedule fans out to every device on the farm.
type DeviceSchedule struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	DeviceID       string                 `json:"device_id,omitempty"`
	FarmID         string                 `json:"farm_id,omitempty"`
	Type           ScheduleType           `json:"type"`
	Command        string                 `json:"command"`
	Params         map[string]interface{} `json:"params,omitempty"`
	Enabled        bool                   `json:"enabled"`
	ExecuteAt      *time.Time             `json:"execute_at,omitempty"`
	DaysOfWeek     []int                  `json:"days_of_week,omitempty"`
	Time           string                 `json:"time,omitempty"` // "HH:MM"
	Timezone       string                 `json:"timezone,omitempty"`
	LastExecutedAt *time.Time             `json:"last_executed_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}
