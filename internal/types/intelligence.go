// Package types holds the shared domain types for the product intelligence
// store: compiled intelligence rows, knowledge snippets, ranked retrieval
// results, and the error taxonomy used across packages.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// IntelligenceSchemaVersion is the current code-level compiler version.
// Rows compiled with an older version are considered stale and are
// re-compiled by the background refresher.
const IntelligenceSchemaVersion = 2

// Intelligence status values.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// CompiledIntelligence is one row per unique product identity. The identity
// is the url_hash of the canonicalized product URL; the original URL is kept
// for display only.
type CompiledIntelligence struct {
	ID                 int64
	ProductURL         string
	URLHash            string
	Data               IntelligenceData
	Embedding          []float32 // nil when the embedding provider was unavailable
	CompilationVersion int
	CompiledAt         time.Time
	UpdatedAt          time.Time
	LastVerifiedAt     *time.Time
	ReferenceCount     int64
	LastAccessedAt     time.Time
	Status             string
	QualityScore       float64
}

// HasEmbedding reports whether semantic retrieval is possible for this row.
func (c *CompiledIntelligence) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// IntelligenceData is the versioned structured-facts payload. SchemaVersion
// tags the layout; blobs read from storage go through
// MigrateIntelligenceData before use so the rest of the system only ever
// sees the current shape.
type IntelligenceData struct {
	SchemaVersion   int      `json:"schema_version"`
	Title           string   `json:"title,omitempty"`
	Price           string   `json:"price,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	Features        []string `json:"features,omitempty"`
	Benefits        []string `json:"benefits,omitempty"`
	PainPoints      []string `json:"pain_points,omitempty"`
	MarketingAngles []string `json:"marketing_angles,omitempty"`
	ComplianceFlags []string `json:"compliance_flags,omitempty"`
	Summary         string   `json:"summary,omitempty"`
}

// intelligenceDataV1 is the original blob layout. It had a flat selling_points
// list instead of the benefits/angles split and no compliance flags.
type intelligenceDataV1 struct {
	Title         string   `json:"title,omitempty"`
	Price         string   `json:"price,omitempty"`
	Features      []string `json:"features,omitempty"`
	SellingPoints []string `json:"selling_points,omitempty"`
	PainPoints    []string `json:"pain_points,omitempty"`
	Summary       string   `json:"summary,omitempty"`
}

// MigrateIntelligenceData decodes a stored intelligence_data blob tagged with
// fromVersion and upgrades it to the current schema. Unknown versions are an
// error rather than a silent passthrough.
func MigrateIntelligenceData(raw []byte, fromVersion int) (IntelligenceData, error) {
	switch fromVersion {
	case 1:
		var v1 intelligenceDataV1
		if err := json.Unmarshal(raw, &v1); err != nil {
			return IntelligenceData{}, fmt.Errorf("decode v1 intelligence data: %w", err)
		}
		return IntelligenceData{
			SchemaVersion: IntelligenceSchemaVersion,
			Title:         v1.Title,
			Price:         v1.Price,
			Features:      v1.Features,
			Benefits:      v1.SellingPoints,
			PainPoints:    v1.PainPoints,
			Summary:       v1.Summary,
		}, nil
	case IntelligenceSchemaVersion:
		var data IntelligenceData
		if err := json.Unmarshal(raw, &data); err != nil {
			return IntelligenceData{}, fmt.Errorf("decode intelligence data: %w", err)
		}
		data.SchemaVersion = IntelligenceSchemaVersion
		return data, nil
	default:
		return IntelligenceData{}, fmt.Errorf("unknown intelligence schema version %d", fromVersion)
	}
}

// CanonicalText renders the structured facts as the text that gets embedded
// as the row-level intelligence vector. Deterministic so re-embedding an
// unchanged row produces the same input.
func (d IntelligenceData) CanonicalText() string {
	text := d.Title
	if d.Summary != "" {
		text += "\n" + d.Summary
	}
	for _, f := range d.Features {
		text += "\nfeature: " + f
	}
	for _, b := range d.Benefits {
		text += "\nbenefit: " + b
	}
	for _, p := range d.PainPoints {
		text += "\nsolves: " + p
	}
	for _, a := range d.MarketingAngles {
		text += "\nangle: " + a
	}
	return text
}

// KnowledgeSnippet is a research text chunk owned by a product identity.
// Ownership is on the product, never on a campaign: deleting a campaign that
// references the product must not touch these rows.
type KnowledgeSnippet struct {
	ID                    string
	ProductIntelligenceID int64
	Content               string
	Embedding             []float32
	Metadata              SnippetMetadata
	SourceURL             string
	CreatedAt             time.Time
}

// SnippetMetadata carries extraction provenance for a snippet.
type SnippetMetadata struct {
	SourceType string `json:"source_type"` // crawl, refresh, manual
	Section    string `json:"section,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
}

// ScoredSnippet pairs a snippet with its similarity to a query embedding.
type ScoredSnippet struct {
	Snippet    KnowledgeSnippet
	Similarity float64
}

// RankedSnippet is a retrieval result with its 1-indexed citation number,
// used as [n] references in generated copy.
type RankedSnippet struct {
	Citation   int
	Content    string
	Similarity float64
	SourceURL  string
	SourceType string
}

// RankedContext is the assembled retrieval-augmented context for one query.
// Empty Snippets is a valid outcome, not an error: it means the product has
// no supporting research above the similarity floor.
type RankedContext struct {
	ProductIntelligenceID int64
	Query                 string
	Snippets              []RankedSnippet
	Degraded              bool // true when semantic retrieval was unavailable
}
