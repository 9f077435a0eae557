package database

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchWidth is how many candidates a match pulls from the graph
	// before re-scoring them with the exact inner product.
	HNSWSearchWidth = 8
)

// FaceEmbeddingDim is the dimension produced by the face embedding service.
const FaceEmbeddingDim = 512

// Civil time layouts used for every stored date and time.
const (
	DateLayout      = "2006-01-02"
	ClockLayout     = "15:04:05"
	TimestampLayout = "2006-01-02 15:04:05"
)
