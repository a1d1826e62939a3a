// Copyright 2026 The Purser Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Purser's standard CBOR encoding configuration.
//
// All CBOR produced by Purser uses Core Deterministic Encoding
// (RFC 8949 §4.2) so that the same logical data always encodes to
// identical bytes. This matters for the engine socket protocol (request
// framing is length-free: one CBOR value per direction) and for sealed
// store records, where re-encoding an unchanged record must not produce
// a different ciphertext input.
//
// Consumers import only this package, never fxamacker/cbor directly.
package codec
