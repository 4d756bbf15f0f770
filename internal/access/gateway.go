package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/mqtt"
)

// ErrAccessDenied is wrapped around any failure to deliver a grant or revoke.
var ErrAccessDenied = errors.New("access: permission update failed")

// Subject identifies the device whose channel access changes.
type Subject struct {
	DeviceID     string
	SerialNumber string
	Channel      string
}

// Gateway grants and revokes channel access.
type Gateway interface {
	Grant(ctx context.Context, s Subject) error
	Revoke(ctx context.Context, s Subject) error
}

// Publisher sends a JSON document to a topic. *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// DynSecGateway drives the broker's dynamic-security plugin.
type DynSecGateway struct {
	pub     Publisher
	topics  mqtt.Topics
	enabled bool
	logger  Logger
}

// NewDynSecGateway creates a gateway. With enabled false, grants and revokes
// are only logged, for brokers running with static ACLs.
func NewDynSecGateway(pub Publisher, topics mqtt.Topics, enabled bool) *DynSecGateway {
	return &DynSecGateway{
		pub:     pub,
		topics:  topics,
		enabled: enabled,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger.
func (g *DynSecGateway) SetLogger(logger Logger) {
	g.logger = logger
}

// dynsecRequest is the plugin's command envelope.
type dynsecRequest struct {
	Commands []dynsecCommand `json:"commands"`
}

type dynsecCommand struct {
	Command  string      `json:"command"`
	RoleName string      `json:"rolename,omitempty"`
	Username string      `json:"username,omitempty"`
	ACLs     []dynsecACL `json:"acls,omitempty"`
}

type dynsecACL struct {
	ACLType string `json:"acltype"`
	Topic   string `json:"topic"`
	Allow   bool   `json:"allow"`
}

// RoleName returns the broker role for a device.
func RoleName(deviceID string) string {
	return "device-" + deviceID
}

// Grant creates the device role and attaches it to the device's client.
func (g *DynSecGateway) Grant(_ context.Context, s Subject) error {
	role := RoleName(s.DeviceID)
	req := dynsecRequest{Commands: []dynsecCommand{
		{
			Command:  "createRole",
			RoleName: role,
			ACLs: []dynsecACL{
				{ACLType: "subscribePattern", Topic: g.topics.DeviceControl(s.Channel), Allow: true},
				{ACLType: "publishClientSend", Topic: g.topics.DeviceTelemetry(s.Channel), Allow: true},
			},
		},
		{Command: "addClientRole", Username: s.SerialNumber, RoleName: role},
	}}
	return g.send("grant", s, req)
}

// Revoke detaches and deletes the device role.
func (g *DynSecGateway) Revoke(_ context.Context, s Subject) error {
	role := RoleName(s.DeviceID)
	req := dynsecRequest{Commands: []dynsecCommand{
		{Command: "removeClientRole", Username: s.SerialNumber, RoleName: role},
		{Command: "deleteRole", RoleName: role},
	}}
	return g.send("revoke", s, req)
}

func (g *DynSecGateway) send(op string, s Subject, req dynsecRequest) error {
	if !g.enabled {
		g.logger.Info("channel access update skipped, dynamic security disabled",
			"op", op,
			"device_id", s.DeviceID,
			"channel", s.Channel,
		)
		return nil
	}
	if err := g.pub.PublishJSON(mqtt.DynamicSecurityTopic, req); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrAccessDenied, op, s.DeviceID, err)
	}
	g.logger.Info("channel access updated",
		"op", op,
		"device_id", s.DeviceID,
		"channel", s.Channel,
	)
	return nil
}
