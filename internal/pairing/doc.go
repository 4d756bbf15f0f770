// Package pairing implements the device trust model: the pairing state
// machine, create-and-pair self registration, factory provisioning, the
// bootstrap handshake and device request authentication.
//
// States:
//
//	Unpaired(code) --Pair--> Paired(owner) --Unpair--> Unpaired(no code)
//	Unpaired(no code) --Provision--> Unpaired(code)
//
// Pairing codes are single use: a successful Pair clears the code.
// Every transition into Paired grants channel access, and every transition
// out of it revokes it, exactly once.
package pairing
