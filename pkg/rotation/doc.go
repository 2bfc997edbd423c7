// Package rotation regenerates Pterodactyl client API keys for panel accounts.
//
// A regeneration replaces the single client API key an account holds on the
// Pterodactyl panel. The Rotator drives the whole flow through small
// interfaces so that the panel client, the account database and the audit
// trail can each be swapped or faked independently:
//
//	┌──────────────────────────────────────────────┐
//	│        CLI / HTTP (cmd/pterokeys, server)    │
//	└──────────────────────┬───────────────────────┘
//	                       │ Rotate(account, operator)
//	┌──────────────────────▼───────────────────────┐
//	│                  Rotator                     │
//	└───┬──────────────┬──────────────┬────────────┘
//	    │              │              │
//	 KeyProvisioner  AccountStore   KeyRevoker / AuditLogger
//	 (client API)    (database)     (application API / log)
//
// # Flow
//
// For a linked account Rotate performs, in order:
//
//  1. Create a new client API key through KeyProvisioner.
//  2. Commit it with AccountStore.UpdateAPIKey.
//  3. Delete the previous key, identified by its first 16 characters, through
//     KeyRevoker. Failures are logged as warnings and never change the result.
//  4. Record USER_API_KEY_REGENERATED through AuditLogger.
//
// The new key is committed before the old one is revoked, so an account is
// never left without a working key. If the commit fails the new key remains
// on the panel and the account keeps its previous key.
//
// # Results
//
// Rotate never returns an error. Every call produces one of the Result
// variants:
//
//   - Success carries the full key and its masked form
//   - NotLinked is returned when the account has no Pterodactyl user
//   - ProvisioningFailed is returned when the panel refuses to create a key
//   - UnexpectedError covers every other failure
//
// Result.Payload renders the response handed to callers. Messages are
// translation keys, not display text.
//
// # Concurrency
//
// Rotator keeps no per-account state and is safe for concurrent use, but two
// rotations of the same account must not overlap: callers serialize them.
//
// # Example
//
//	rotator := rotation.NewRotator(keys, panel, accounts, auditLogger, logger,
//		rotation.WithRecorder(metrics))
//
//	switch r := rotator.Rotate(ctx, account, operator).(type) {
//	case rotation.Success:
//		fmt.Println(r.MaskedKey)
//	case rotation.NotLinked:
//		// link the account first
//	}
package rotation
