package mqtt

import (
	"errors"

	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/graylogic-mqttlink/internal/session"
)

// refusals maps paho's CONNACK refusal errors to session reasons.
var refusals = []struct {
	err    error
	reason session.DisconnectReason
}{
	{packets.ErrorRefusedBadProtocolVersion, session.ReasonUnacceptableProtocolVersion},
	{packets.ErrorRefusedIDRejected, session.ReasonIdentifierRejected},
	{packets.ErrorRefusedServerUnavailable, session.ReasonServerUnavailable},
	{packets.ErrorRefusedBadUsernameOrPassword, session.ReasonMalformedCredentials},
	{packets.ErrorRefusedNotAuthorised, session.ReasonNotAuthorized},
}

// reasonFromError classifies a failed connect or a lost connection.
// Anything that is not a broker refusal is treated as a transport drop.
func reasonFromError(err error) session.DisconnectReason {
	if err == nil {
		return session.ReasonUnknown
	}
	for _, r := range refusals {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return session.ReasonTCPDisconnected
}
