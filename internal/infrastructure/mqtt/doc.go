// Package mqtt adapts the Eclipse Paho client to the session.Transport
// contract.
//
// Paho runs its network I/O and callbacks on its own goroutines. This
// package never calls session handlers from those goroutines: connect
// results and connection-lost notifications are queued, tagged with the
// generation of the client that produced them, and delivered only when the
// host loop calls Dispatch. Events from a client that has since been
// replaced are discarded.
//
// Paho's own auto-reconnect and connect-retry are switched off. The session
// Supervisor owns reconnection and its backoff.
//
// Usage:
//
//	tr := mqtt.New(cfg.MQTT)
//	sup := session.NewSupervisor(tr, nil)
//	...
//	for range ticker.C {
//	    tr.Dispatch()
//	    sup.Tick()
//	}
package mqtt
