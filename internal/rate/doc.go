// Package rate implements Redis fixed-window counters for login failures and
// refresh attempts.
//
// # Window semantics
//
// A Lua script increments a counter and sets its expiry on the first hit in
// one step, so a crash can never leave a counter without a window. Key
// suffixes under the configured prefix:
//   - :al:  login failures per account email
//   - :ali: login failures per client IP
//   - :ar:  refresh attempts per client IP, or per token hash when the IP
//     is unknown
//
// Over-budget results are *LimitedError values carrying the scope and the
// time left in the window; they match ErrRateLimited with errors.Is.
package rate
