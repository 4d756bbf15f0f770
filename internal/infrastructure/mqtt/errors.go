package mqtt

import "errors"

// Broker errors. Callers match them with errors.Is; the wrapped paho error
// carries the detail.
var (
	ErrNotConnected      = errors.New("mqtt: broker link down")
	ErrConnectionFailed  = errors.New("mqtt: cannot reach broker")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects a QoS outside 0..2 before it reaches the broker.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic rejects an empty topic or filter.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
