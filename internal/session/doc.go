// Package session owns the lifecycle of the device's single MQTT session.
//
// It provides:
//   - Supervisor: the connection state machine (Idle, Connecting, Connected,
//     Backoff) with bounded exponential backoff between attempts
//   - Publisher: a stateless publish facade that nudges the Supervisor when
//     the link is down instead of failing silently
//   - Transport: the contract an asynchronous MQTT client must satisfy
//
// # Presence
//
// A presence topic carries "on" / "off" (configurable). The offline payload is
// installed as the Last Will at CONNECT; the online payload is published,
// retained at QoS 0, immediately after every successful connect.
//
// # Scheduling
//
// The Supervisor never blocks and never starts goroutines. The host loop must
// call Tick periodically; transport events are delivered through the handlers
// the Supervisor registers on the Transport. Reconnect attempts are only ever
// issued from Tick (or from a rejected publish), never from the disconnect
// handler itself, so a disconnect reason that recurs synchronously cannot spin.
//
//	sup := session.NewSupervisor(transport, session.NewSystemClock())
//	if err := sup.ConfigureEndpoint("192.168.1.10", 1883); err != nil {
//	    return err
//	}
//	if err := sup.ConfigurePresence("dev/status", "", ""); err != nil {
//	    return err
//	}
//	if err := sup.Start(); err != nil {
//	    return err
//	}
//
//	pub := session.NewPublisher(sup)
//	for range ticker.C {
//	    transport.Dispatch()
//	    sup.Tick()
//	    _ = pub.PublishString("sensors/a", "42")
//	}
//
// # Time
//
// Time comes from a Clock returning a wrapping uint32 millisecond counter.
// Elapsed time is computed with modular subtraction, so a wrap between two
// readings does not stall reconnection.
package session
