// Package dispatch turns a dispatch request into a running coding agent
// process.
//
// A dispatch resolves the request's profile against the profile registry,
// hands the resolved executor the caller's approval service and execution
// context, then asks the executor to spawn. Every step before spawn is free
// of side effects, so a failed resolution leaves nothing behind.
//
// States (per dispatch):
//
//	requested -> resolving -> resolved -> injecting -> spawning -> spawned
//	                      \-> failed                           \-> failed
//
// Errors:
//   - Unknown profile → *UnknownExecutorTypeError (errors.Is ErrUnknownExecutorType)
//   - Backend spawn failure → returned exactly as the backend produced it
//
// The Dispatcher holds no mutable state and is safe for concurrent use.
// Process lifecycle after spawn belongs to the returned handle.
package dispatch
