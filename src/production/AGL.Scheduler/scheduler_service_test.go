package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	dispatch "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Dispatch"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

type fakeScheduleRepo struct {
	mu        sync.Mutex
	schedules map[string]*aglmodels.DeviceSchedule
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{schedules: map[string]*aglmodels.DeviceSchedule{}}
}

func (f *fakeScheduleRepo) GetSchedule(_ context.Context, id string) (*aglmodels.DeviceSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.schedules[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeScheduleRepo) ListSchedules(_ context.Context, _, _ string) ([]aglmodels.DeviceSchedule, error) {
	return f.listAll(), nil
}

func (f *fakeScheduleRepo) ListEnabled(_ context.Context) ([]aglmodels.DeviceSchedule, error) {
	var out []aglmodels.DeviceSchedule
	for _, s := range f.listAll() {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) listAll() []aglmodels.DeviceSchedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []aglmodels.DeviceSchedule
	for _, s := range f.schedules {
		out = append(out, *s)
	}
	return out
}

func (f *fakeScheduleRepo) CreateSchedule(_ context.Context, s aglmodels.DeviceSchedule) (*aglmodels.DeviceSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = uuid.New().String()
	cp := s
	f.schedules[s.ID] = &cp
	return &s, nil
}

func (f *fakeScheduleRepo) UpdateSchedule(_ context.Context, s *aglmodels.DeviceSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[s.ID]; !ok {
		return interfaces.ErrNotFound
	}
	cp := *s
	f.schedules[s.ID] = &cp
	return nil
}

func (f *fakeScheduleRepo) DeleteSchedule(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.schedules, id)
	return nil
}

func (f *fakeScheduleRepo) MarkExecuted(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.schedules[id]; ok {
		s.LastExecutedAt = &at
		return nil
	}
	return interfaces.ErrNotFound
}

type fakeDeviceLister struct {
	devices []aglmodels.Device
}

func (f *fakeDeviceLister) GetDevice(_ context.Context, _ string) (*aglmodels.Device, error) {
	return nil, interfaces.ErrNotFound
}
func (f *fakeDeviceLister) GetDeviceBySerial(_ context.Context, _ string) (*aglmodels.Device, error) {
	return nil, interfaces.ErrNotFound
}
func (f *fakeDeviceLister) ListDevices(_ context.Context, _ string) ([]aglmodels.Device, error) {
	return f.devices, nil
}
func (f *fakeDeviceLister) LookupOrCreate(_ context.Context, d aglmodels.Device) (*aglmodels.Device, bool, error) {
	return &d, false, nil
}
func (f *fakeDeviceLister) UpdateDevice(_ context.Context, _ *aglmodels.Device) error { return nil }

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []dispatch.Request
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req dispatch.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestScheduler(repo *fakeScheduleRepo, devices *fakeDeviceLister, d *fakeDispatcher) *Scheduler {
	log := logger.NewLogger(&config.LoggingConfig{Level: "error", Format: "json"})
	return New(repo, devices, d, log)
}

func TestValidate_Target(t *testing.T) {
	now := time.Now()
	sched := aglmodels.DeviceSchedule{
		Type:      aglmodels.ScheduleOneTime,
		Command:   "pump_on",
		ExecuteAt: &now,
	}

	assert.ErrorIs(t, validate(&sched), ErrAmbiguousTarget)

	sched.DeviceID = "dev-1"
	sched.FarmID = "farm-1"
	assert.ErrorIs(t, validate(&sched), ErrAmbiguousTarget)

	sched.FarmID = ""
	assert.NoError(t, validate(&sched))
}

func TestValidate_RecurringFields(t *testing.T) {
	sched := aglmodels.DeviceSchedule{
		Type:     aglmodels.ScheduleRecurring,
		DeviceID: "dev-1",
		Command:  "pump_on",
	}
	assert.ErrorIs(t, validate(&sched), ErrInvalidSchedule)

	sched.DaysOfWeek = []int{1, 3, 5}
	sched.Time = "06:30"
	assert.NoError(t, validate(&sched))

	sched.Time = "25:00"
	assert.ErrorIs(t, validate(&sched), ErrInvalidSchedule)
}

func TestTick_OneTimeExecutesOnceThenDisables(t *testing.T) {
	repo := newFakeScheduleRepo()
	d := &fakeDispatcher{}
	s := newTestScheduler(repo, &fakeDeviceLister{}, d)

	executeAt := time.Now().Add(-time.Minute)
	created, err := s.CreateSchedule(context.Background(), aglmodels.DeviceSchedule{
		Name:      "morning run",
		Type:      aglmodels.ScheduleOneTime,
		DeviceID:  "dev-1",
		Command:   "pump_on",
		Enabled:   true,
		ExecuteAt: &executeAt,
	})
	require.NoError(t, err)

	s.Tick(context.Background())
	s.Tick(context.Background())

	assert.Equal(t, 1, d.count())
	assert.Equal(t, aglmodels.CommandSourceSchedule, d.requests[0].Source)

	stored, err := repo.GetSchedule(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	assert.NotNil(t, stored.LastExecutedAt)
}

func TestTick_OneTimeInFutureNotExecuted(t *testing.T) {
	repo := newFakeScheduleRepo()
	d := &fakeDispatcher{}
	s := newTestScheduler(repo, &fakeDeviceLister{}, d)

	executeAt := time.Now().Add(time.Hour)
	_, err := s.CreateSchedule(context.Background(), aglmodels.DeviceSchedule{
		Type:      aglmodels.ScheduleOneTime,
		DeviceID:  "dev-1",
		Command:   "pump_on",
		Enabled:   true,
		ExecuteAt: &executeAt,
	})
	require.NoError(t, err)

	s.Tick(context.Background())
	assert.Zero(t, d.count())
}

func TestTick_RecurringMatchesLocalClock(t *testing.T) {
	repo := newFakeScheduleRepo()
	d := &fakeDispatcher{}
	s := newTestScheduler(repo, &fakeDeviceLister{}, d)

	// Fix "now" so the schedule's weekday and HH:MM match exactly.
	now := time.Date(2026, 3, 2, 6, 30, 10, 0, time.UTC) // a Monday
	s.now = func() time.Time { return now }

	_, err := s.CreateSchedule(context.Background(), aglmodels.DeviceSchedule{
		Type:       aglmodels.ScheduleRecurring,
		DeviceID:   "dev-1",
		Command:    "pump_on",
		Enabled:    true,
		DaysOfWeek: []int{1},
		Time:       "06:30",
	})
	require.NoError(t, err)

	s.Tick(context.Background())
	assert.Equal(t, 1, d.count())

	// Second tick in the same minute is suppressed.
	s.now = func() time.Time { return now.Add(20 * time.Second) }
	s.Tick(context.Background())
	assert.Equal(t, 1, d.count())

	// Same time a week later fires again.
	s.now = func() time.Time { return now.AddDate(0, 0, 7) }
	s.Tick(context.Background())
	assert.Equal(t, 2, d.count())
}

func TestTick_RecurringWrongDaySkipped(t *testing.T) {
	repo := newFakeScheduleRepo()
	d := &fakeDispatcher{}
	s := newTestScheduler(repo, &fakeDeviceLister{}, d)

	now := time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC) // a Monday
	s.now = func() time.Time { return now }

	_, err := s.CreateSchedule(context.Background(), aglmodels.DeviceSchedule{
		Type:       aglmodels.ScheduleRecurring,
		DeviceID:   "dev-1",
		Command:    "pump_on",
		Enabled:    true,
		DaysOfWeek: []int{2, 4},
		Time:       "06:30",
	})
	require.NoError(t, err)

	s.Tick(context.Background())
	assert.Zero(t, d.count())
}

func TestTick_FarmScheduleFansOut(t *testing.T) {
	repo := newFakeScheduleRepo()
	devices := &fakeDeviceLister{devices: []aglmodels.Device{
		{ID: "dev-1"}, {ID: "dev-2"}, {ID: "dev-3"},
	}}
	d := &fakeDispatcher{}
	s := newTestScheduler(repo, devices, d)

	executeAt := time.Now().Add(-time.Minute)
	_, err := s.CreateSchedule(context.Background(), aglmodels.DeviceSchedule{
		Type:      aglmodels.ScheduleOneTime,
		FarmID:    "farm-1",
		Command:   "valve_open",
		Enabled:   true,
		ExecuteAt: &executeAt,
	})
	require.NoError(t, err)

	s.Tick(context.Background())

	require.Equal(t, 3, d.count())
	seen := map[string]bool{}
	for _, req := range d.requests {
		seen[req.DeviceID] = true
		assert.Equal(t, "valve_open", req.Command)
	}
	assert.Len(t, seen, 3)
}

func TestToggle(t *testing.T) {
	repo := newFakeScheduleRepo()
	s := newTestScheduler(repo, &fakeDeviceLister{}, &fakeDispatcher{})

	executeAt := time.Now().Add(time.Hour)
	created, err := s.CreateSchedule(context.Background(), aglmodels.DeviceSchedule{
		Type:      aglmodels.ScheduleOneTime,
		DeviceID:  "dev-1",
		Command:   "pump_on",
		Enabled:   true,
		ExecuteAt: &executeAt,
	})
	require.NoError(t, err)

	toggled, err := s.Toggle(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Enabled)

	_, err = s.Toggle(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}
