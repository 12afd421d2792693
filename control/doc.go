// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for the collective
// runtime.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads with typed getters and hot-reload listeners
//   - Per-operation counters and gauges
//   - Named debug probes, including platform probes
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
