package aglbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
)

func newTestBridge() *Bridge {
	log := logger.NewLogger(&config.LoggingConfig{Level: "error", Format: "json"})
	return New(config.MQTTConfig{}, "tcp://unused:1883", log, nil)
}

type recordingListener struct {
	msgs []Message
}

func (r *recordingListener) OnMessage(msg Message) { r.msgs = append(r.msgs, msg) }

func TestDispatch_FansOutToMatchingListeners(t *testing.T) {
	b := newTestBridge()

	status := &recordingListener{}
	telemetry := &recordingListener{}
	all := &recordingListener{}
	b.Subscribe("device/+/status", status)
	b.Subscribe("device/+/telemetry", telemetry)
	b.Subscribe(PatternAll, all)

	b.dispatch(inbound{topic: "device/dev-1/status", payload: []byte(`{"online":true}`)})

	require.Len(t, status.msgs, 1)
	assert.Equal(t, "dev-1", status.msgs[0].DeviceID)
	assert.Equal(t, "device/dev-1/status", status.msgs[0].Topic)
	assert.Equal(t, true, status.msgs[0].Payload["online"])
	assert.Empty(t, telemetry.msgs)
	require.Len(t, all.msgs, 1)
}

func TestDispatch_MultipleListenersSamePattern(t *testing.T) {
	b := newTestBridge()

	first := &recordingListener{}
	second := &recordingListener{}
	b.Subscribe("provision/new", first)
	b.Subscribe("provision/new", second)

	b.dispatch(inbound{topic: "provision/new", payload: []byte(`{"serial":"SN-1"}`)})

	assert.Len(t, first.msgs, 1)
	assert.Len(t, second.msgs, 1)
	assert.Equal(t, UnknownDevice, first.msgs[0].DeviceID)
}

func TestDispatch_MalformedPayloadDropped(t *testing.T) {
	b := newTestBridge()

	all := &recordingListener{}
	b.Subscribe(PatternAll, all)

	b.dispatch(inbound{topic: "device/dev-1/telemetry", payload: []byte("not json")})

	assert.Empty(t, all.msgs)
}

func TestDispatch_PanickingListenerIsolated(t *testing.T) {
	b := newTestBridge()

	b.Subscribe("device/+/telemetry", ListenerFunc(func(Message) {
		panic("listener bug")
	}))
	survivor := &recordingListener{}
	b.Subscribe("device/+/telemetry", survivor)

	assert.NotPanics(t, func() {
		b.dispatch(inbound{topic: "device/dev-1/telemetry", payload: []byte(`{"v":1}`)})
	})
	assert.Len(t, survivor.msgs, 1)
}

func TestListenerFunc(t *testing.T) {
	var got Message
	ListenerFunc(func(m Message) { got = m }).OnMessage(Message{Topic: "t"})
	assert.Equal(t, "t", got.Topic)
}
