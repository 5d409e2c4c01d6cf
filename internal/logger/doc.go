// Package logger wraps zap for the release manager:
//   - a global sugared logger with a console encoder on stdout,
//   - context helpers (ToContext/FromContext/WithName/WithKV) so every
//     lifecycle step logs with the name and fields of its caller,
//   - level parsing for the --log-level flag,
//   - leveled helpers (Info, WarnKV, ErrorKV, ...).
package logger
