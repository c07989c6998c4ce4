package aglbridge

import "strings"

// PatternAll is the internal catch-all subscription pattern. It is not a
// broker wildcard; the bridge treats it as "deliver every message" and it is
// never sent to the broker.
const PatternAll = "*"

// UnknownDevice is returned by ExtractDeviceID when a topic does not follow
// a device-scoped convention. Callers must treat it as a distinct, non-fatal
// case rather than an error.
const UnknownDevice = "unknown"

// Matches reports whether an MQTT topic matches a subscription pattern.
// A pattern segment "+" matches exactly one topic segment and "#" matches
// the remainder of the topic; any other segment must match literally.
func Matches(topic, pattern string) bool {
	if pattern == PatternAll {
		return true
	}
	if topic == pattern {
		return true
	}

	topicParts := strings.Split(topic, "/")
	patternParts := strings.Split(pattern, "/")

	for i := 0; i < len(patternParts); i++ {
		if patternParts[i] == "#" {
			return true
		}
		if patternParts[i] == "+" {
			if i >= len(topicParts) {
				return false
			}
			continue
		}
		if i >= len(topicParts) || patternParts[i] != topicParts[i] {
			return false
		}
	}

	return len(topicParts) == len(patternParts)
}

// ExtractDeviceID parses the device id out of the topic conventions
// device/{id}/... and farm/{farmId}/device/{id}/... It returns
// UnknownDevice when the topic has neither shape.
func ExtractDeviceID(topic string) string {
	parts := strings.Split(topic, "/")

	if len(parts) >= 2 && parts[0] == "device" && parts[1] != "" {
		return parts[1]
	}
	if len(parts) >= 4 && parts[0] == "farm" && parts[2] == "device" && parts[3] != "" {
		return parts[3]
	}

	return UnknownDevice
}

// DeviceCommandTopic returns the command topic for a device.
func DeviceCommandTopic(deviceID string) string {
	return "device/" + deviceID + "/cmd"
}

// ProvisionResponseTopic returns the provisioning response topic for a device.
func ProvisionResponseTopic(deviceID string) string {
	return "device/" + deviceID + "/provision/resp"
}

// FarmDeviceCommandTopic returns the farm-scoped command topic for a device.
func FarmDeviceCommandTopic(farmID, deviceID string) string {
	return "farm/" + farmID + "/device/" + deviceID + "/cmd"
}
