// Package dispatch is the single path for sending commands to devices. Every
// caller (API, gateway, threshold engine, scheduler) goes through it so that
// command logging, metrics and client notification stay consistent.
package dispatch

import (
	"context"
	"time"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	metrics "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Metrics"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// DevicePublisher is the slice of the broker bridge the dispatcher needs.
type DevicePublisher interface {
	PublishToDevice(deviceID, command string, data interface{}) error
}

// Broadcaster notifies connected clients subscribed to a device.
type Broadcaster interface {
	BroadcastToDevice(deviceID, event string, payload interface{})
}

// Request describes one command to send.
type Request struct {
	DeviceID   string
	Command    string
	Params     map[string]interface{}
	Source     aglmodels.CommandSource
	SensorType aglmodels.SensorType
	Reason     string
}

type Dispatcher struct {
	publisher   DevicePublisher
	broadcaster Broadcaster
	commands    interfaces.CommandLogRepository
	log         *logger.Logger
	metrics     *metrics.Metrics
}

func New(publisher DevicePublisher, broadcaster Broadcaster, commands interfaces.CommandLogRepository, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		publisher:   publisher,
		broadcaster: broadcaster,
		commands:    commands,
		log:         log.WithComponent("dispatch"),
		metrics:     m,
	}
}

// Dispatch publishes the command, records the outcome and notifies
// subscribed clients. The publish error, if any, is returned to the caller;
// logging and notification failures are not.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	publishErr := d.publisher.PublishToDevice(req.DeviceID, req.Command, req.Params)

	entry := aglmodels.CommandLog{
		DeviceID:   req.DeviceID,
		Command:    req.Command,
		Params:     req.Params,
		Source:     req.Source,
		SensorType: req.SensorType,
		Reason:     req.Reason,
		Success:    publishErr == nil,
	}
	if publishErr != nil {
		entry.ErrorMessage = publishErr.Error()
	}
	if d.commands != nil {
		if _, err := d.commands.CreateCommandLog(ctx, entry); err != nil {
			d.log.WithDevice(req.DeviceID).ErrorWithError(err, "failed to record command log")
		}
	}

	result := "success"
	event := "commandSent"
	if publishErr != nil {
		result = "failure"
		event = "commandFailed"
	}
	if d.metrics != nil {
		d.metrics.CommandsDispatched.WithLabelValues(string(req.Source), result).Inc()
	}

	if d.broadcaster != nil {
		payload := map[string]interface{}{
			"deviceId":  req.DeviceID,
			"command":   req.Command,
			"source":    string(req.Source),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if publishErr != nil {
			payload["error"] = publishErr.Error()
		}
		d.broadcaster.BroadcastToDevice(req.DeviceID, event, payload)
	}

	if publishErr != nil {
		d.log.WithDevice(req.DeviceID).WithField("command", req.Command).
			ErrorWithError(publishErr, "command publish failed")
		return publishErr
	}

	d.log.WithDevice(req.DeviceID).WithFields(map[string]interface{}{
		"command": req.Command,
		"source":  string(req.Source),
	}).Debug("command dispatched")
	return nil
}
