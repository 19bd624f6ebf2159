// Package crypto provides the cryptographic primitives for Spartic:
// participant identities, pairwise shared secrets, XOR block utilities,
// and the synchronized keystream construction.
//
// The synchronized keystream is the heart of the protocol. Each group
// participant holds a list of 32-byte secrets arranged so that every
// pairwise secret appears in exactly two participants' lists. Reading the
// keystream expands each secret with XSalsa20 and XOR-folds the expansions,
// so the XOR of all participants' reads at the same position is identically
// zero. A participant XORs its payload into its own read before broadcast;
// XORing everyone's broadcasts back together cancels the keystreams and
// leaves only the payloads, with no way to tell who contributed which bytes.
package crypto
