// Package testutil provides testing utilities for hashroot.
//
// This package is intended for use in tests and benchmarks only.
// It provides a controllable clock and a seeded generator for random
// records.
//
// # Random Records
//
//	rng := testutil.NewRNG(seed)
//	recs := rng.Records(100)       // distinct frame-like records
//	rec := rng.Record(3)           // arbitrary nesting up to depth 3
//
// # Fake Clock
//
//	clk := testutil.NewClock(time.Unix(1_700_000_000, 0))
//	engine, _ := hashroot.New(hashroot.WithClock(clk.Now))
//	clk.Advance(time.Minute)
package testutil
