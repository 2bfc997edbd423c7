// Package fakes provides test doubles for the pterokeys rotation collaborators.
//
// Fakes are manually implemented (not generated). Each one records its calls
// and exposes a *Func hook to override the default behavior.
//
// Usage:
//
//	provisioner := fakes.NewFakeProvisioner("ptlc_AAAAAAAAAAAbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
//	revoker := &fakes.FakeRevoker{}
//	rotator := rotation.NewRotator(provisioner, revoker, store, audit, logger)
//	// Rotate, then inspect provisioner.Calls, revoker.Calls...
package fakes
