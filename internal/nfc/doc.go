// Package nfc binds NFC tag UIDs to devices.
//
// A UID is globally unique and belongs to at most one device at a time.
// Linking a UID that is already bound elsewhere moves the existing row to
// the new device (last writer wins); the tag keeps its identity. The set
// of UIDs linked to a device is the allowed-tag context of the rfid
// detection rule.
package nfc
