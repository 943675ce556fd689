// Package access implements the authorization core of the Gray Logic access
// service: the decision engine that answers "may this credential enter?"
// and the custody ledger that loans physical keys against a credential.
//
// Both depend only on [credential.Directory], injected at construction.
// Neither logs, retries, or publishes; callers receive a [Decision],
// a [Receipt], or an error that [CodeOf] maps onto the error taxonomy.
//
// # Custody state machine
//
// Each (credential, key) pair is either NOT_HELD or HELD:
//
//	NOT_HELD ──IssueKey──▶ HELD
//	HELD ──ReturnKey──▶ NOT_HELD
//
// IssueKey from HELD fails with ErrConflict and ReturnKey from NOT_HELD
// fails with ErrInvalidState. Mutations on one credential are serialized
// by a [LockSet]; different credentials proceed in parallel.
package access
