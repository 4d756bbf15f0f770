// Package device stores the device registry: identity, ownership, pairing
// state, channel and the per-device feature-flag configuration.
//
// Devices are never hard-deleted. Pairing state only moves through the
// conditional transitions in Repository (Pair, Unpair, IssuePairingCode);
// a partial config update cannot touch it.
//
// Every device row has exactly one device_config row, created in the same
// transaction as the device.
package device
