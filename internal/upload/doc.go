// Package upload implements the resumable chunked-upload engine: session
// creation, sequential chunk transfer that always resyncs to the offset the
// server reports, restart recovery by status probing, cooperative
// cancellation, and the single refresh-and-retry on an expired token.
//
// The engine talks to the remote side through the Remote interface and keeps
// its durable state in a Registry and a HistoryLog, all defined here at the
// consumer. Production wiring uses gdrive.Client, gdrive.TokenProvider, and
// the uploadstate package.
//
// Every upload resolves to exactly one Outcome, delivered once to the
// CompletionFunc. Removal from the registry is the guard that keeps a
// terminal outcome from being handled twice.
package upload
