// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package admission implements the player connection admission pipeline.
//
// A connecting session moves through a fixed state machine:
//
//	Connecting -> {Rejected | Joining} -> Active -> Removed
//
// The Promoter drives that machine from host triggers (connecting, joining,
// joined, dropped) and consults, in order, the Lockdown gate, the
// IdentityResolver, the DuplicateGuard and BanEnforcement. All shared state
// lives in an explicit State value created at process start.
//
// # Rejections
//
// Policy rejections (no license, duplicate session, ban, lockdown) are returned
// as *Rejection values and never logged as errors. Unexpected collaborator
// failures become KindLoadFault: they are logged with full detail and the
// session only ever sees a generic message.
//
// # Concurrency
//
// Triggers are run through a Dispatcher that serializes work per session id.
// Different sessions run concurrently and may interleave at every collaborator
// call. The duplicate check and the later commit are deliberately not atomic;
// see DuplicateGuard.
package admission
