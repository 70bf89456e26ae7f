// Package logger provides structured logging for mapfetch built on zerolog.
//
// The package exposes a Logger interface so components can be tested with
// the in-memory TestLogger or silenced with the nop logger. A global
// instance is initialized once from the logging configuration and shared
// through GetLogger.
package logger
