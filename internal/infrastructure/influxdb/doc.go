// Package influxdb records MQTT link telemetry in InfluxDB v2.
//
// The Client is a session.Observer. Each lifecycle event is written as one
// point of the mqtt_link measurement:
//
//	tags:   device_id, event, state, reason (disconnects only)
//	fields: delay_ms, session_present (connects), topic (rejected
//	        publishes), uptime_ms (end of a connected session)
//
// Writes go through the batched, non-blocking write API. Failures are
// reported asynchronously to the SetOnError callback.
//
// Configuration:
//
//	influxdb:
//	  enabled: true
//	  url: "http://localhost:8086"
//	  org: "site"
//	  bucket: "telemetry"
//	  batch_size: 100
//	  flush_interval: 10   # seconds
package influxdb
