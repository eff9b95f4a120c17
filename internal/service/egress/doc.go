// Package egress implements the membership reconciliation engine.
//
// Every operation follows the same sequence:
//
//  1. Validate input (emails, location id). Nothing touches the network
//     until validation passes.
//  2. Build a fresh MembershipSnapshot by listing every configured location
//     in configured order. Mutating flows use the strict policy and abort on
//     the first failed list read.
//  3. Resolve the current assignment: the first configured location whose
//     list contains the email.
//  4. Apply the minimal transition: remove from the old list, then add to the
//     new one. Assigning to the current location or resetting an unassigned
//     user is a no-op with zero mutating calls.
//  5. Record one audit entry for every transition that changed something.
//
// There is no lock across steps by default. Two concurrent requests for the
// same email can interleave and leave the user on two lists or none. When a
// Leaser is configured, a per-email lease is held from step 2 to step 5 and
// a second concurrent request fails fast with ErrBusy.
//
// A failed add after a successful remove is not rolled back. The caller gets
// a *PartialTransitionError and the user is left unassigned.
package egress
