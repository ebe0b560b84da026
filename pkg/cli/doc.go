// Package cli implements lumen-verify, the command-line companion for
// webhook receivers.
//
// Receivers verify X-Lumen-Signature against the raw request body:
//
//	lumen-verify verify -secret whsec_... -signature 5f2c... -body delivery.json
//
// sign prints the signature Lumen would send for a body, and secret
// generates a whsec_ secret for local testing. verify exits non-zero on a
// mismatch.
package cli
