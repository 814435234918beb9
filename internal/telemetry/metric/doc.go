// Package metric provides Prometheus metrics for meshkv.
//
//   - prometheus.go: node registry (lifecycle state, peers, announce
//     outcomes, gate wait time, replication) and the /metrics handler
//   - collector.go: InfoCollector, identity labels read at scrape time
//
// A nil *Registry is valid and records nothing.
package metric
