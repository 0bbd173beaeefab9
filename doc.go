// Package userflow implements an embeddable account lifecycle and
// authentication core: anonymous to registered transitions, credential
// verification, time limited confirmation tokens, federated provider
// linking, and session scoped locale/timezone state.
//
// Lifecycle flows:
//   - Flow orchestrates login, logout, registration (start/confirm/finish),
//     password restore (start/confirm/finish), and provider login with the
//     LOGIN, REGISTER, and ASSOCIATE goals. Every operation takes an explicit
//     context and SessionState handle; there is no ambient request state.
//   - Registration persists nothing until the finish step. The confirmation
//     token is the only trusted carrier of the email address between steps.
//
// Storage:
//   - Datastore exposes uniform find/put/delete/commit semantics over the
//     user, role, provider_user, and login_record kinds. Optional kinds are
//     enabled through StoreConfig; touching a disabled kind yields
//     ErrNotConfigured. Bun-backed and in-memory implementations ship with
//     the package.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Flow to describe
//     login, registration, restore, and provider events. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package userflow
