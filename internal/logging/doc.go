// Package logging wires slog with the handlers and field conventions used
// across the daemon: a console handler for interactive use, a JSON handler
// for log files, component-scoped child loggers, and a progress sampler
// that keeps transfer logging readable.
package logging
