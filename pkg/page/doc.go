// Package page drives the lifecycle of a server-rendered page that becomes
// interactive after load.
//
// A Page owns one result store (Results) holding the latest value of every
// provider and command, plus the reserved fields errors, route,
// parseRootNodeDataset and fail. Every write to the store is followed by one
// render: the RenderFunc is called with a View over the live store and the
// result is mounted onto the live root through a Reconciler.
//
// Start runs in a fixed order:
//
//  1. seed the store with Dependencies.Store and an empty error mapping
//  2. merge the configured commands with the built-ins cancelError,
//     redirect and reload, and bind them into Actions
//  3. capture fail, route and the root node dataset
//  4. lift the existing root into the render baseline
//  5. run every provider in order
//  6. render once
//  7. call Dependencies.AfterProviders
//
// Providers and commands return tagged outcomes: Immediate values, pending
// *Future values, or Stream push sources. Providers run strictly one after
// the other; a pending provider blocks the next one until it settles.
// Provider failures are returned from Start unhandled. Command failures are
// never returned: they are recorded as an ErrorRecord keyed by failure kind
// and rendered.
//
// A pending command renders twice, first with the command reported as in
// flight (View.InFlight and SlotContext.CommandBeingExecuted), then after it
// settles. Renders from different commands and stream pushes interleave; the
// last write to a name wins.
//
// RenderFunc and slot handlers run while the page holds its render lock.
// They may read Results freely and report failures through Results.Fail,
// which records the failure after the current render and renders once more.
// They must not invoke actions synchronously.
package page
