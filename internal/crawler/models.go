package crawler

// SearchResult is one ranked record returned by the search backend.
type SearchResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Content  string `json:"content"`
	Engine   string `json:"engine"`
	Category string `json:"category"`
}

// CategoryResult carries the category-specific fields for non-general
// searches (images, videos, files, map, social media). Only the fields
// relevant to the record's Type are populated.
type CategoryResult struct {
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Content   string  `json:"content,omitempty"`
	ImgSrc    string  `json:"img_src,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	IframeSrc string  `json:"iframe_src,omitempty"`
	Format    string  `json:"format,omitempty"`
	Size      string  `json:"size,omitempty"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// SearchEnvelope is the structured response for one search operation.
type SearchEnvelope struct {
	Success      bool             `json:"success"`
	Query        string           `json:"query"`
	Category     string           `json:"category"`
	ResultsCount int              `json:"results_count"`
	Results      []SearchResult   `json:"results"`
	CategoryHits []CategoryResult `json:"category_results,omitempty"`
	ZeroResults  bool             `json:"zero_results_warning,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// FetchResult is the outcome of a single fetch attempt. It is immutable once
// returned; batch recovery replaces a failed entry wholesale, never mutates it.
type FetchResult struct {
	Success       bool   `json:"success"`
	URL           string `json:"url"`
	Title         string `json:"title,omitempty"`
	Content       string `json:"content,omitempty"`
	Excerpt       string `json:"excerpt,omitempty"`
	Description   string `json:"description,omitempty"`
	Language      string `json:"language,omitempty"`
	ContentLength int    `json:"content_length"`
	DateAccessed  string `json:"date_accessed,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ShortageReport describes the gap between the target count and what a batch
// actually delivered after recovery. Produced once per FetchMany call.
type ShortageReport struct {
	ShortageDetected bool   `json:"shortage_detected"`
	Requested        int    `json:"requested"`
	Achieved         int    `json:"achieved"`
	Shortage         int    `json:"shortage,omitempty"`
	Recommendation   string `json:"recommendation,omitempty"`
}

// Chunk is one bounded window over aggregated content. Chunks are ordered and,
// apart from the declared overlap, cover the source contiguously.
type Chunk struct {
	Index  int    `json:"chunk_number"`
	Text   string `json:"content"`
	Start  int    `json:"start_pos"`
	End    int    `json:"end_pos"`
	Length int    `json:"length"`
}

// ChunkInfo summarizes a chunking pass for the batch envelope.
type ChunkInfo struct {
	TotalChunks       int `json:"total_chunks"`
	AvgChunkSize      int `json:"avg_chunk_size"`
	TotalOriginalSize int `json:"total_original_size"`
	ChunkThreshold    int `json:"chunk_threshold"`
	ChunkSizeSetting  int `json:"chunk_size_setting"`
}

// BatchPerformance carries batch timing for the envelope.
type BatchPerformance struct {
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	AvgTimePerURL    float64 `json:"avg_time_per_url"`
}

// BatchEnvelope is the structured response for one FetchMany operation.
type BatchEnvelope struct {
	Success          bool             `json:"success"`
	TotalURLs        int              `json:"total_urls"`
	Successful       int              `json:"successful"`
	Failed           int              `json:"failed"`
	Results          []FetchResult    `json:"results"`
	TotalContentSize int              `json:"total_content_size"`
	Chunked          bool             `json:"chunked"`
	Chunks           []Chunk          `json:"chunks,omitempty"`
	ChunkInfo        *ChunkInfo       `json:"chunk_info,omitempty"`
	ShortageInfo     *ShortageReport  `json:"shortage_info,omitempty"`
	Performance      BatchPerformance `json:"performance"`
	Error            string           `json:"error,omitempty"`
}
