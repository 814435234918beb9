// Package benchmark measures kvstore read and write paths against the
// in-memory and badger-backed engines at several key counts.
//
//	go test -run '^$' -bench . -benchmem ./internal/tests/benchmark/
package benchmark
