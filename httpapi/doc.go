// Package httpapi serves the authcore engine over HTTP.
//
// Routes live under /api/v1: auth (health, register, login, refresh,
// logout, logout-all), admin (assign-role, assign-permission) and account
// (view-account, change-password). The refresh secret travels only in an
// HttpOnly cookie; the access token only in the response body and the
// Authorization header.
//
// Errors are written as {timestamp, status, error, message} with the status
// chosen by [StatusFor].
package httpapi
