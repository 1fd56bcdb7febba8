// Package logx configures satsalert's structured logging.
//
// A small wrapper (logx.Logger) sits on top of zerolog so that:
//   - console output stays short and readable
//   - file output is JSON, one event per line
//   - warnings can optionally be mirrored to an operator chat (min-level + rate limit)
package logx
