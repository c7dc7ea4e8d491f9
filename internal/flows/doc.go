// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunLogin, RunRotate, RunLogout, ...) accepts a typed
// dependency struct and returns a result carrying a FailureKind. The root
// package maps failure kinds to its public errors, audit events and metrics;
// flows never import it.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Log or return plaintext passwords or refresh secrets.
package flows
