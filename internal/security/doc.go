// Package security derives a read-only security posture report from the
// engine's effective configuration. The report is logged at startup by the
// server binary and exposed through Engine.SecurityReport.
//
// # What this package must NOT do
//
//   - Include secret material (signing keys, Redis credentials) in a report.
package security
