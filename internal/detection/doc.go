// Package detection turns stored telemetry readings into findings.
//
// Each telemetry kind has a fixed, ordered list of rules (see
// DefaultRegistry). For every reading the Engine loads the reading just
// before it, assembles the kind-specific Context (allowed NFC tags,
// geofences, the previous gyro sample), runs the rules in order and
// persists whatever they produce in a single transaction. Persisted
// findings are then handed to any registered Sink (time-series mirror,
// websocket hub).
//
// Rules are pure: they see only their Input and never touch storage, so
// they can be tested with literal readings.
package detection
