// Package notifytest provides test doubles for the notify package and its adapters:
// recording and scripted observers, a slog.Handler spy and spies for the
// dependency-free metrics, tracing and contextual logging interfaces.
package notifytest
