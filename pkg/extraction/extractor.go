package extraction

import (
	"context"
	"strings"
)

// DataStructure classifies the extracted content shape.
type DataStructure string

// Data structure kinds.
const (
	StructureText   DataStructure = "text"
	StructureTable  DataStructure = "table"
	StructureMixed  DataStructure = "mixed"
	StructureBinary DataStructure = "binary"
)

// Result is the outcome of one extraction pass.
type Result struct {
	Success       bool           `json:"success"`
	FileType      string         `json:"file_type"`
	FileName      string         `json:"file_name"`
	DataStructure DataStructure  `json:"data_structure"`
	ExtractedData ExtractedData  `json:"extracted_data"`
	ToolsUsed     []string       `json:"tools_used"`
	CascadeLog    []string       `json:"cascade_log,omitempty"`
	FromCache     bool           `json:"from_cache"`
}

// ExtractedData holds the extraction payload.
type ExtractedData struct {
	Text           string     `json:"text,omitempty"`
	Tables         [][]string `json:"tables,omitempty"`
	EmbeddedImages int        `json:"embedded_images,omitempty"`
}

// Extractor is the contract required of the file-parser collaborator.
// Implementations own the format-specific tooling; the pipeline only sees
// this interface plus the shared cache.
type Extractor interface {
	Extract(ctx context.Context, data []byte, fileType, fileName, tenantID string) (*Result, error)
}

// Service fronts an Extractor with the shared content-addressed cache.
type Service struct {
	cache     *Cache
	extractor Extractor
}

// NewService wraps an extractor with the shared cache.
func NewService(cache *Cache, extractor Extractor) *Service {
	return &Service{cache: cache, extractor: extractor}
}

// Cache exposes the underlying cache for sweeps and stats.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Extract returns the cached result for identical bytes within TTL, or runs
// the extractor and caches its output. Cache failures never block extraction.
func (s *Service) Extract(ctx context.Context, data []byte, fileType, fileName, tenantID string) (*Result, error) {
	hash := ContentHash(data)

	if entry := s.cache.Get(hash, tenantID); entry != nil {
		return &Result{
			Success:       true,
			FileType:      entry.FileType,
			FileName:      entry.FileName,
			DataStructure: StructureText,
			ExtractedData: ExtractedData{Text: entry.Text},
			ToolsUsed:     entry.ToolsUsed,
			FromCache:     true,
		}, nil
	}

	result, err := s.extractor.Extract(ctx, data, fileType, fileName, tenantID)
	if err != nil {
		return nil, err
	}
	if result.Success {
		s.cache.Set(hash, Entry{
			Text:      result.ExtractedData.Text,
			FileName:  fileName,
			FileType:  fileType,
			ToolsUsed: result.ToolsUsed,
		}, tenantID)
	}
	return result, nil
}

// PlainTextExtractor treats the attachment bytes as UTF-8 text. It is the
// fallback extractor and the one used in tests; real parsers (PDF, Excel,
// audio) are external collaborators implementing Extractor.
type PlainTextExtractor struct{}

// Extract returns the bytes as text.
func (PlainTextExtractor) Extract(_ context.Context, data []byte, fileType, fileName, _ string) (*Result, error) {
	text := strings.ToValidUTF8(string(data), "")
	return &Result{
		Success:       true,
		FileType:      fileType,
		FileName:      fileName,
		DataStructure: StructureText,
		ExtractedData: ExtractedData{Text: text},
		ToolsUsed:     []string{"plaintext"},
	}, nil
}
