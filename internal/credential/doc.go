// Package credential provides the Credential Directory for the Gray Logic
// access service.
//
// A credential is a badge or device record looked up by its serial. It
// carries two sets of identifiers:
//
//   - Access: the rooms and keys the credential is entitled to
//   - Custody: the physical keys currently loaned to it
//
// # Contracts
//
// The access core depends only on [Directory], which reads a credential by
// serial and atomically replaces its custody set. Administrative writes go
// through [Store], which adds create, update, and delete on top of it.
//
//	┌──────────────────┐     ┌──────────────────┐
//	│   access.Engine  │     │   API admin CRUD │
//	│   access.Ledger  │     │                  │
//	└────────┬─────────┘     └────────┬─────────┘
//	         │ Directory              │ Store
//	         ▼                        ▼
//	┌─────────────────────────────────────────────┐
//	│  SQLiteStore (credentials, credential_access,│
//	│  credential_custody)  |  MemoryStore         │
//	└─────────────────────────────────────────────┘
//
// # Identifiers
//
// Resource and key identifiers arrive from callers as strings or numbers.
// [ParseID] reduces both to a canonical string so "7" and 7 name the same key.
// Serials are matched exactly: no case folding and no trimming.
//
// # Usage
//
//	store := credential.NewSQLiteStore(db)
//	c := &credential.Credential{
//	    Name:   "Front desk badge",
//	    Serial: "ABC123",
//	    Access: credential.NewIDSet("room1", "room5"),
//	}
//	if err := store.Create(ctx, c); err != nil {
//	    return err
//	}
package credential
