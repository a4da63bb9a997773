// Package progress carries run, fetch and batch milestones from the executors
// to pluggable sinks. Hub batches events on a background goroutine and never
// blocks the emitting executor; when its buffer is full events are dropped.
package progress
