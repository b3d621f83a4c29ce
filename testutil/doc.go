// Package testutil provides testing utilities for sensevec.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating deterministic random vector
// datasets, computing exact nearest neighbors, and verifying search
// recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	corpus := rng.GaussianVectors(1000, 64)
//	clustered := rng.ClusteredVectors(1000, 64, 10, 0.05)
//
// # Exact Search (Ground Truth)
//
//	exact := testutil.BruteForceSearch(corpus, query, 10)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(exact, approximate)
package testutil
