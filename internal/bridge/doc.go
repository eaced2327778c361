// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package bridge exposes the admission pipeline to the game host over HTTP.
//
// The host posts one request per lifecycle trigger (connecting, joining,
// joined, dropped) and polls /v1/disconnects for sessions it must drop.
// Identity payloads sent with the connecting trigger are cached here and
// served to the pipeline through the admission.IdentityProvider interface.
package bridge
