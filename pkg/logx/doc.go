// Package logx wraps zerolog behind a small value-type Logger with
// functional fields, a no-op zero value, and a Service that can swap
// sinks and levels at runtime (config hot reload).
package logx
