package ingest

import (
	"regexp"
	"strings"
)

// structuredMarkers maps source labels to the per-country section markers
// used for delimiter-based chunking. Sources without an entry fall back to
// generic windowing.
var structuredMarkers = map[string]*regexp.Regexp{
	"country_requirements": regexp.MustCompile(`(?i)(Denmark:|Sweden:|Norway|Finland)`),
	"branch_mappings":      regexp.MustCompile(`(?i)(Denmark:|Sweden:|Norway:|Finland:)`),
}

// Chunker splits document text into retrievable units.
type Chunker struct {
	// ChunkSize is the window size in runes for generic chunking.
	ChunkSize int
	// ChunkOverlap is the overlap in runes between consecutive windows.
	ChunkOverlap int
}

// NewChunker creates a chunker with the given window parameters.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}
}

// Chunk splits one document into ordered chunks. Documents with known
// per-country sections are split on their markers so the country label
// stays attached to its content; everything else gets fixed-size
// overlapping windows.
func (c *Chunker) Chunk(doc Document) []string {
	if markers, ok := structuredMarkers[doc.Source]; ok {
		return splitByMarkers(doc.Text, markers)
	}
	return c.splitWindows(doc.Text)
}

// splitByMarkers splits text on country markers. Text preceding the first
// marker becomes a standalone header chunk when non-empty; each marker is
// recombined with the content that follows it as "{marker}\n{content}".
// A marker with no following content is dropped.
func splitByMarkers(text string, markers *regexp.Regexp) []string {
	locs := markers.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	var chunks []string

	if header := strings.TrimSpace(text[:locs[0][0]]); header != "" {
		chunks = append(chunks, header)
	}

	for i, loc := range locs {
		marker := text[loc[0]:loc[1]]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		content := strings.TrimSpace(text[loc[1]:end])
		if content == "" {
			continue
		}
		chunks = append(chunks, strings.TrimSpace(marker+"\n"+content))
	}

	return chunks
}

// splitWindows splits text into fixed-size overlapping windows, preserving
// order. The overlap keeps context continuity across window boundaries.
func (c *Chunker) splitWindows(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.ChunkSize {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	step := c.ChunkSize - c.ChunkOverlap
	if step <= 0 {
		step = c.ChunkSize
	}

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + c.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}
