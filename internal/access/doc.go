// Package access controls which devices may use their private messaging
// channel, and publishes server events onto that channel.
//
// Grants and revokes are issued to the broker's dynamic-security plugin as
// JSON command batches on $CONTROL/dynamic-security/v1. A paired device gets
// a role named device-<id> allowing it to subscribe to its control topic and
// publish to its telemetry topic; the role is attached to the broker client
// whose username is the device serial number.
package access
