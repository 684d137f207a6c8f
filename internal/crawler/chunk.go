package crawler

// DefaultChunkSize is substituted when a caller passes a non-positive size.
const DefaultChunkSize = 15000

// maxChunks bounds pathological inputs; chunking stops at this many windows.
const maxChunks = 100

// ChunkText splits text into overlapping windows of at most chunkSize
// characters. Overlap is clamped to chunkSize/4 when it would reach the
// chunk size and never goes negative. Windows advance by chunkSize-overlap;
// a degenerate advance is forced forward by chunkSize/2 so the walk always
// terminates. The final chunk ends exactly at len(text).
func ChunkText(text string, chunkSize, overlap int) []Chunk {
	length := len(text)
	if length == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []Chunk
	start := 0
	for start < length && len(chunks) < maxChunks {
		end := start + chunkSize
		if end > length {
			end = length
		}
		chunks = append(chunks, Chunk{
			Index:  len(chunks) + 1,
			Text:   text[start:end],
			Start:  start,
			End:    end,
			Length: end - start,
		})
		if end >= length {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + max(1, chunkSize/2)
		}
		start = next
	}
	return chunks
}

// SummarizeChunks builds the envelope summary for a chunking pass.
func SummarizeChunks(chunks []Chunk, originalSize, threshold, chunkSize int) *ChunkInfo {
	if len(chunks) == 0 {
		return nil
	}
	total := 0
	for _, c := range chunks {
		total += c.Length
	}
	return &ChunkInfo{
		TotalChunks:       len(chunks),
		AvgChunkSize:      total / len(chunks),
		TotalOriginalSize: originalSize,
		ChunkThreshold:    threshold,
		ChunkSizeSetting:  chunkSize,
	}
}
