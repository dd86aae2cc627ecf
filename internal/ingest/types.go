package ingest

// Format is the detected text format of a source file
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatUnknown  Format = "unknown"
)

// Document is the extracted, cleaned text of one source file.
// ID is the key the document is registered under.
type Document struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Format Format `json:"format"`
	Text   string `json:"text"`
	Size   int64  `json:"size"`
}

// LoadResult represents the result of loading a directory
type LoadResult struct {
	Root        string      `json:"root"`
	Documents   []*Document `json:"documents"`
	Errors      []string    `json:"errors,omitempty"`
	ElapsedTime string      `json:"elapsed_time"`
}

// FileInfo holds information about a file to be loaded
type FileInfo struct {
	Path      string
	RelPath   string // Relative path from scan root
	Extension string
	Size      int64
}
