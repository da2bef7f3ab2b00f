package embed

// Metadata travels with each stored chunk. ChunkIndex and MaxChunkIndex
// describe the chunk's position in its document; they are informational
// and carry no resume semantics.
type Metadata struct {
	TokenCount    int `json:"tokenCount"`
	ChunkIndex    int `json:"chunkIndex"`
	MaxChunkIndex int `json:"maxChunkIndex"`
}

// Record is one embedded chunk ready for storage.
type Record struct {
	DocumentID string    `json:"documentId"`
	ChunkText  string    `json:"chunkText"`
	Embedding  []float32 `json:"embeddings"`
	Metadata   Metadata  `json:"metadata"`
}

// Result is the outcome of one adaptive embedding run.
type Result struct {
	Records    []Record
	ChunkLimit int // per-chunk token limit that succeeded
	Attempts   int
	Batches    int
}
