// Package kmeans implements k-means clustering for quantization training.
//
// Used internally by the product quantizer to learn one codebook per
// subspace from training data.
package kmeans
