// Package scheduler executes time-based device commands: one-time schedules
// with an absolute execution instant, and recurring schedules defined by
// local weekday + HH:MM in a named timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	dispatch "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Dispatch"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

var (
	// ErrAmbiguousTarget means none or both of deviceId/farmId were given.
	ErrAmbiguousTarget  = errors.New("exactly one of deviceId or farmId must be set")
	ErrInvalidSchedule  = errors.New("schedule fields do not match its type")
	ErrScheduleNotFound = errors.New("schedule not found")
)

const tickInterval = time.Minute

// CommandDispatcher sends the scheduled commands.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) error
}

type Scheduler struct {
	schedules  interfaces.ScheduleRepository
	devices    interfaces.DeviceRepository
	dispatcher CommandDispatcher
	log        *logger.Logger

	now func() time.Time
}

func New(schedules interfaces.ScheduleRepository, devices interfaces.DeviceRepository, dispatcher CommandDispatcher, log *logger.Logger) *Scheduler {
	return &Scheduler{
		schedules:  schedules,
		devices:    devices,
		dispatcher: dispatcher,
		log:        log.WithComponent("scheduler"),
		now:        time.Now,
	}
}

// Start runs the minute tick loop until the context is cancelled. Ticks
// never overlap: processing runs on the loop goroutine itself.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes every enabled schedule once against the current time.
func (s *Scheduler) Tick(ctx context.Context) {
	schedules, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		s.log.ErrorWithError(err, "failed to list schedules")
		return
	}

	now := s.now()
	for i := range schedules {
		sched := &schedules[i]
		due, err := s.isDue(sched, now)
		if err != nil {
			s.log.WithField("schedule_id", sched.ID).ErrorWithError(err, "bad schedule definition")
			continue
		}
		if due {
			s.execute(ctx, sched, now)
		}
	}
}

func (s *Scheduler) isDue(sched *aglmodels.DeviceSchedule, now time.Time) (bool, error) {
	if sched.Type == aglmodels.ScheduleOneTime {
		return sched.ExecuteAt != nil && !sched.ExecuteAt.After(now) && sched.LastExecutedAt == nil, nil
	}

	loc, err := loadLocation(sched.Timezone)
	if err != nil {
		return false, err
	}
	local := now.In(loc)

	if !containsDay(sched.DaysOfWeek, int(local.Weekday())) {
		return false, nil
	}
	hour, minute, err := parseClock(sched.Time)
	if err != nil {
		return false, err
	}
	if local.Hour() != hour || local.Minute() != minute {
		return false, nil
	}

	// Suppress a second firing within the same local minute.
	if sched.LastExecutedAt != nil {
		last := sched.LastExecutedAt.In(loc)
		if last.Year() == local.Year() && last.YearDay() == local.YearDay() &&
			last.Hour() == hour && last.Minute() == minute {
			return false, nil
		}
	}
	return true, nil
}

func (s *Scheduler) execute(ctx context.Context, sched *aglmodels.DeviceSchedule, now time.Time) {
	s.log.WithFields(map[string]interface{}{
		"schedule_id": sched.ID,
		"name":        sched.Name,
	}).Info("executing schedule")

	if sched.DeviceID != "" {
		if err := s.dispatchTo(ctx, sched, sched.DeviceID); err != nil {
			s.log.WithField("schedule_id", sched.ID).ErrorWithError(err, "schedule dispatch failed")
			return
		}
	} else {
		devices, err := s.devices.ListDevices(ctx, sched.FarmID)
		if err != nil {
			s.log.WithField("schedule_id", sched.ID).ErrorWithError(err, "failed to list farm devices")
			return
		}
		// Farm schedules fan out per device; one failing device does not
		// stop the rest.
		for _, device := range devices {
			if err := s.dispatchTo(ctx, sched, device.ID); err != nil {
				s.log.WithDevice(device.ID).WithField("schedule_id", sched.ID).
					ErrorWithError(err, "schedule dispatch failed for device")
			}
		}
	}

	if err := s.schedules.MarkExecuted(ctx, sched.ID, now); err != nil {
		s.log.WithField("schedule_id", sched.ID).ErrorWithError(err, "failed to record execution")
	}
	if sched.Type == aglmodels.ScheduleOneTime {
		sched.Enabled = false
		sched.LastExecutedAt = &now
		if err := s.schedules.UpdateSchedule(ctx, sched); err != nil {
			s.log.WithField("schedule_id", sched.ID).ErrorWithError(err, "failed to disable one-time schedule")
		}
	}
}

func (s *Scheduler) dispatchTo(ctx context.Context, sched *aglmodels.DeviceSchedule, deviceID string) error {
	return s.dispatcher.Dispatch(ctx, dispatch.Request{
		DeviceID: deviceID,
		Command:  sched.Command,
		Params:   sched.Params,
		Source:   aglmodels.CommandSourceSchedule,
		Reason:   sched.Name,
	})
}

// CreateSchedule validates and stores a schedule.
func (s *Scheduler) CreateSchedule(ctx context.Context, sched aglmodels.DeviceSchedule) (*aglmodels.DeviceSchedule, error) {
	if err := validate(&sched); err != nil {
		return nil, err
	}
	return s.schedules.CreateSchedule(ctx, sched)
}

// UpdateSchedule validates and persists changes to a schedule.
func (s *Scheduler) UpdateSchedule(ctx context.Context, sched *aglmodels.DeviceSchedule) error {
	if err := validate(sched); err != nil {
		return err
	}
	if err := s.schedules.UpdateSchedule(ctx, sched); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return ErrScheduleNotFound
		}
		return err
	}
	return nil
}

// Toggle flips the enabled flag.
func (s *Scheduler) Toggle(ctx context.Context, id string) (*aglmodels.DeviceSchedule, error) {
	sched, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	sched.Enabled = !sched.Enabled
	if err := s.schedules.UpdateSchedule(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func validate(sched *aglmodels.DeviceSchedule) error {
	if (sched.DeviceID == "") == (sched.FarmID == "") {
		return ErrAmbiguousTarget
	}
	switch sched.Type {
	case aglmodels.ScheduleOneTime:
		if sched.ExecuteAt == nil {
			return fmt.Errorf("%w: one-time schedules require executeAt", ErrInvalidSchedule)
		}
	case aglmodels.ScheduleRecurring:
		if len(sched.DaysOfWeek) == 0 || sched.Time == "" {
			return fmt.Errorf("%w: recurring schedules require daysOfWeek and time", ErrInvalidSchedule)
		}
		if _, _, err := parseClock(sched.Time); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		if _, err := loadLocation(sched.Timezone); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, sched.Type)
	}
	return nil
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

func parseClock(v string) (hour, minute int, err error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad time %q", v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", v)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", v)
	}
	return hour, minute, nil
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
