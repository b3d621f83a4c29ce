// Package quantization implements product quantization for vector compression.
//
// A vector of dimension D is split into M contiguous subvectors of D/M
// dimensions each. Every subspace learns its own codebook of K = 2^nbits
// centroids via k-means, and a vector is stored as M centroid indices
// instead of D floats.
//
// # Training and Encoding
//
//	pq, err := quantization.NewProductQuantizer(
//	    128, // Dimension
//	    8,   // Number of subspaces
//	    8,   // Bits per code (256 centroids per subspace)
//	)
//	err = pq.Train(trainingVectors)
//	codes, err := pq.Encode(vector) // 128 floats -> 8 bytes
//
// Memory reduction:
//   - 128-dim float32 = 512 bytes
//   - M=8, nbits=8 = 8 bytes (64x compression)
//   - M=16, nbits=4 = 8 bytes (64x compression, coarser codebooks)
//
// Training with fewer vectors than centroids does not fail: the per-subspace
// slice is replicated up to K rows and the replicas are perturbed with small
// gaussian noise so k-means still has K distinct seeds. NeedsAugmentation
// reports whether a training set will take that path.
//
// # Asymmetric Distance Computation
//
// Queries stay uncompressed. BuildDistanceTable precomputes the squared L2
// distance from each query subvector to every centroid, after which scoring
// a stored vector is M table lookups:
//
//	table, err := pq.BuildDistanceTable(query)
//	dist := pq.ADCDistance(table, codes)
//
// ADCDistance equals the squared L2 distance between the query and the
// decoded vector. It is approximate only in the sense that the decoded
// vector is a centroid reconstruction, not the original.
//
// # Bit Packing
//
// For nbits < 8 the one-byte-per-code form wastes space. PackCodes packs
// codes at their true width, least significant bits first with no padding
// between fields, and UnpackCodes reverses it:
//
//	packed, err := quantization.PackCodes(codes, 4) // 8 codes -> 4 bytes
//	codes, err = quantization.UnpackCodes(packed, 8, 4)
//
// At nbits=8 packing is the identity layout.
package quantization
