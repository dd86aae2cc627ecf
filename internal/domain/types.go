package domain

// Chunk is a contiguous slice of a document's text, addressed by its
// 0-based position within the document.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Position   int    `json:"position"`
	Text       string `json:"text"`
}

// SearchResult is one entry of a globally ranked search.
// Smaller distances are more similar.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	Position   int     `json:"position"`
	Distance   float32 `json:"distance"`
}

// RelatedChunk is a SearchResult resolved back to its chunk text.
type RelatedChunk struct {
	DocumentID string  `json:"document_id"`
	Position   int     `json:"position"`
	Text       string  `json:"text"`
	Distance   float32 `json:"distance"`
}

// Less reports whether r ranks before o: by distance, then document id, then position.
func (r SearchResult) Less(o SearchResult) bool {
	if r.Distance != o.Distance {
		return r.Distance < o.Distance
	}
	if r.DocumentID != o.DocumentID {
		return r.DocumentID < o.DocumentID
	}
	return r.Position < o.Position
}
