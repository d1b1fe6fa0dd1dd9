// Package patch installs integrations into host libraries exactly once per process.
//
// A Coordinator owns one State per registered Integration and drives the
// Unpatched -> Patching -> Patched transition. Installation is best-effort:
// a failing integration stays Unpatched, its PatchError is logged and kept
// for diagnostics, and the host keeps running without instrumentation.
// Concurrent Patch calls for the same integration share a single in-flight
// install; callers that lose the race wait for the winner's result.
package patch
