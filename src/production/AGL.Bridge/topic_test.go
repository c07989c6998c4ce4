package aglbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	cases := []struct {
		topic   string
		pattern string
		want    bool
	}{
		{"device/dev-1/status", "device/+/status", true},
		{"device/dev-1/telemetry", "device/+/status", false},
		{"a/b/c", "a/#", true},
		{"a", "a/#", true},
		{"a/b", "a/+/+", false},
		{"a/b/c", "a/+/+", true},
		{"a/b/c/d", "a/+/+", false},
		{"device/dev-1/status", "device/dev-1/status", true},
		{"farm/f1/device/d1/resp", "farm/+/device/+/resp", true},
		{"farm/f1/device/d1/cmd", "farm/+/device/+/resp", false},
		{"anything/at/all", PatternAll, true},
		{"", PatternAll, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Matches(c.topic, c.pattern), "topic %q pattern %q", c.topic, c.pattern)
	}
}

func TestExtractDeviceID(t *testing.T) {
	assert.Equal(t, "dev-1", ExtractDeviceID("device/dev-1/telemetry"))
	assert.Equal(t, "dev-1", ExtractDeviceID("device/dev-1"))
	assert.Equal(t, "dev-1", ExtractDeviceID("farm/f1/device/dev-1/resp"))
	assert.Equal(t, UnknownDevice, ExtractDeviceID("provision/new"))
	assert.Equal(t, UnknownDevice, ExtractDeviceID("farm/f1/sensor/s1"))
	assert.Equal(t, UnknownDevice, ExtractDeviceID("device//telemetry"))
}

func TestTopicBuilders(t *testing.T) {
	assert.Equal(t, "device/dev-1/cmd", DeviceCommandTopic("dev-1"))
	assert.Equal(t, "device/dev-1/provision/resp", ProvisionResponseTopic("dev-1"))
	assert.Equal(t, "farm/f1/device/dev-1/cmd", FarmDeviceCommandTopic("f1", "dev-1"))
}
