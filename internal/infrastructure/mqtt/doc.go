// Package mqtt provides MQTT client connectivity for Guard Imoto Core.
//
// This package manages:
//   - Connection to a Mosquitto broker with auto-reconnect
//   - Publishing of device channel events
//   - Topic subscriptions (device telemetry ingestion)
//   - Last Will and Testament for core offline detection
//
// # Architecture
//
// Every paired device owns a channel. The broker's dynamic-security plugin
// restricts each device to its own control and telemetry topics; the core
// is the only client allowed on every channel.
//
//	Device ↔ Mosquitto (per-channel ACL) ↔ Guard Imoto Core
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := client.Topics().DeviceControl(channel)
//	err = client.PublishJSON(topic, event)
package mqtt
