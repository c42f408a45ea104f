package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/graylogic-mqttlink/internal/session"
)

// Measurement is the InfluxDB measurement for link lifecycle points.
const Measurement = "mqtt_link"

// Observe implements session.Observer: every lifecycle event becomes one
// mqtt_link point. Non-blocking.
func (c *Client) Observe(ev session.Event) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var uptime time.Duration
	switch {
	case ev.Kind == session.EventConnected:
		c.connectedAt = ts
	case ev.From == session.StateConnected && !c.connectedAt.IsZero():
		uptime = ts.Sub(c.connectedAt)
		c.connectedAt = time.Time{}
	}
	c.mu.Unlock()

	c.writeAPI.WritePoint(linkPoint(c.deviceID, ev, ts, uptime))
}

// linkPoint builds the point for ev. uptime is the session length when ev
// ends a connected session, zero otherwise.
func linkPoint(deviceID string, ev session.Event, ts time.Time, uptime time.Duration) *write.Point {
	tags := map[string]string{
		"device_id": deviceID,
		"event":     string(ev.Kind),
		"state":     string(ev.To),
	}
	if ev.Kind == session.EventDisconnected {
		tags["reason"] = ev.Reason.String()
	}

	fields := map[string]interface{}{
		"delay_ms": int64(ev.DelayMillis),
	}
	switch ev.Kind {
	case session.EventConnected:
		fields["session_present"] = ev.SessionPresent
	case session.EventPublishRejected:
		fields["topic"] = ev.Topic
	}
	if uptime > 0 {
		fields["uptime_ms"] = uptime.Milliseconds()
	}

	return write.NewPoint(Measurement, tags, fields, ts)
}

var _ session.Observer = (*Client)(nil)
