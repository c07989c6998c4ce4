package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

type fakePublisher struct {
	calls []string
	err   error
}

func (f *fakePublisher) PublishToDevice(deviceID, command string, data interface{}) error {
	f.calls = append(f.calls, deviceID+":"+command)
	return f.err
}

type fakeBroadcaster struct {
	events []string
}

func (f *fakeBroadcaster) BroadcastToDevice(deviceID, event string, payload interface{}) {
	f.events = append(f.events, event)
}

type fakeCommandLogRepo struct {
	entries []aglmodels.CommandLog
	err     error
}

func (f *fakeCommandLogRepo) CreateCommandLog(_ context.Context, entry aglmodels.CommandLog) (*aglmodels.CommandLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeCommandLogRepo) ListByDevice(_ context.Context, _ string, _ interfaces.CommandLogQuery) ([]aglmodels.CommandLog, error) {
	return f.entries, nil
}

func testLogger() *logger.Logger {
	return logger.NewLogger(&config.LoggingConfig{Level: "error", Format: "json"})
}

func TestDispatch_Success(t *testing.T) {
	pub := &fakePublisher{}
	bc := &fakeBroadcaster{}
	repo := &fakeCommandLogRepo{}
	d := New(pub, bc, repo, testLogger(), nil)

	err := d.Dispatch(context.Background(), Request{
		DeviceID: "dev-1",
		Command:  "pump_on",
		Source:   aglmodels.CommandSourceManual,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"dev-1:pump_on"}, pub.calls)
	assert.Equal(t, []string{"commandSent"}, bc.events)
	require.Len(t, repo.entries, 1)
	assert.True(t, repo.entries[0].Success)
	assert.Empty(t, repo.entries[0].ErrorMessage)
}

func TestDispatch_PublishFailure(t *testing.T) {
	boom := errors.New("broker unavailable")
	pub := &fakePublisher{err: boom}
	bc := &fakeBroadcaster{}
	repo := &fakeCommandLogRepo{}
	d := New(pub, bc, repo, testLogger(), nil)

	err := d.Dispatch(context.Background(), Request{
		DeviceID: "dev-1",
		Command:  "pump_off",
		Source:   aglmodels.CommandSourceAutomated,
		Reason:   "OVER_TEMPERATURE",
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"commandFailed"}, bc.events)
	require.Len(t, repo.entries, 1)
	assert.False(t, repo.entries[0].Success)
	assert.Equal(t, boom.Error(), repo.entries[0].ErrorMessage)
	assert.Equal(t, "OVER_TEMPERATURE", repo.entries[0].Reason)
}

func TestDispatch_LogFailureDoesNotMaskResult(t *testing.T) {
	pub := &fakePublisher{}
	repo := &fakeCommandLogRepo{err: errors.New("db down")}
	d := New(pub, nil, repo, testLogger(), nil)

	err := d.Dispatch(context.Background(), Request{
		DeviceID: "dev-1",
		Command:  "valve_open",
		Source:   aglmodels.CommandSourceSchedule,
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{"dev-1:valve_open"}, pub.calls)
}
