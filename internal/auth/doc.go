// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package auth provides the credential and security-token core of keyward.
//
// # Primitives
//
//   - ScryptHasher - peppered scrypt records in "salt:key" form; bcrypt records verify and need upgrade
//   - HashPool - bounded worker pool wrapping any PasswordHasher
//   - TokenSigner - HS256 JWT sign, verify (expired vs invalid) and best-effort decode
//
// # Security Tokens
//
// SecurityTokenStore keeps at most one token per (user, purpose). Issuing
// replaces the previous token; validating deletes the row whatever the outcome,
// so a token works once and a rejected token can never be retried. Operations
// on the same slot are serialized in-process and the repository upsert is atomic.
//
// # Services
//
//   - CredentialService - authenticate and login
//   - AccountService - signup and account removal
//   - VerificationWorkflow - email verification and password reset
//   - TokenSweeper - periodic removal of expired rows
//
// Services are created with New* constructors that validate dependencies.
package auth
