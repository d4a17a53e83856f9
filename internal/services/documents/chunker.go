package documents

import (
	"strings"
)

// Chunker splits document text into overlapping windows for embedding.
// Windows are measured in bytes. Every byte of the input appears in at
// least one chunk: a tail smaller than the overlap is merged into the
// final chunk instead of being dropped.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. Degenerate settings fall back to treating
// the whole text as one chunk.
func NewChunker(size, overlap int) *Chunker {
	return &Chunker{size: size, overlap: overlap}
}

// Split breaks text into byte windows of the configured size with overlap
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	if c.size <= 0 || c.overlap >= c.size || len(text) <= c.size {
		return []string{text}
	}

	step := c.size - c.overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + c.size
		if end >= len(text) || len(text)-end <= c.overlap {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

// SplitTabular chunks delimited text by rows, prefixing the header line to
// every chunk so each stays independently interpretable. Batch size comes
// from the average row length so chunks land near the configured byte size.
func (c *Chunker) SplitTabular(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) <= 1 {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	header := lines[0]
	rows := lines[1:]

	total := 0
	for _, row := range rows {
		total += len(row)
	}
	avgRowLen := total / len(rows)
	if avgRowLen < 1 {
		avgRowLen = 1
	}

	rowsPerChunk := c.size / avgRowLen
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}
	rowsOverlap := c.overlap / avgRowLen
	if rowsOverlap < 1 {
		rowsOverlap = 1
	}
	// Overlap must leave forward progress.
	if rowsOverlap >= rowsPerChunk {
		rowsOverlap = rowsPerChunk - 1
	}

	step := rowsPerChunk - rowsOverlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for i := 0; ; i += step {
		end := i + rowsPerChunk
		if end >= len(rows) || len(rows)-end <= rowsOverlap {
			chunks = append(chunks, header+"\n"+strings.Join(rows[i:], "\n"))
			break
		}
		chunks = append(chunks, header+"\n"+strings.Join(rows[i:end], "\n"))
	}
	return chunks
}

// SplitForType picks the chunking strategy from the file type
func (c *Chunker) SplitForType(text, fileType string) []string {
	if isTabularType(fileType) {
		return c.SplitTabular(text)
	}
	return c.Split(text)
}

func isTabularType(fileType string) bool {
	t := strings.ToLower(fileType)
	return strings.HasPrefix(t, "text/csv") || strings.HasSuffix(t, ".csv")
}

// inferFileType maps a file extension to a content type when the upload
// does not name one.
func inferFileType(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "text/plain"
	}
	switch strings.ToLower(name[idx+1:]) {
	case "csv":
		return "text/csv"
	case "html", "htm":
		return "text/html"
	case "md", "markdown":
		return "text/markdown"
	case "json":
		return "application/json"
	case "js", "jsx":
		return "application/javascript"
	case "ts", "tsx":
		return "application/typescript"
	default:
		return "text/plain"
	}
}
