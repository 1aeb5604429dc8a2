package types

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMigrateIntelligenceData_FromV1(t *testing.T) {
	raw := []byte(`{
		"title": "Old Product",
		"price": "9.99",
		"features": ["f1"],
		"selling_points": ["saves hours"],
		"pain_points": ["manual work"],
		"summary": "legacy blob"
	}`)

	data, err := MigrateIntelligenceData(raw, 1)
	if err != nil {
		t.Fatalf("MigrateIntelligenceData failed: %v", err)
	}

	// The v1 selling_points list becomes benefits in the current schema.
	want := IntelligenceData{
		SchemaVersion: IntelligenceSchemaVersion,
		Title:         "Old Product",
		Price:         "9.99",
		Features:      []string{"f1"},
		Benefits:      []string{"saves hours"},
		PainPoints:    []string{"manual work"},
		Summary:       "legacy blob",
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("migrated data mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrateIntelligenceData_Current(t *testing.T) {
	raw := []byte(`{"schema_version": 2, "title": "Current", "benefits": ["b1"]}`)
	data, err := MigrateIntelligenceData(raw, IntelligenceSchemaVersion)
	if err != nil {
		t.Fatalf("MigrateIntelligenceData failed: %v", err)
	}
	if data.Title != "Current" || len(data.Benefits) != 1 {
		t.Errorf("data = %+v", data)
	}
}

func TestMigrateIntelligenceData_UnknownVersion(t *testing.T) {
	if _, err := MigrateIntelligenceData([]byte(`{}`), 99); err == nil {
		t.Error("expected error for unknown schema version")
	}
	if _, err := MigrateIntelligenceData([]byte(`{}`), 0); err == nil {
		t.Error("expected error for version zero")
	}
}

func TestMigrateIntelligenceData_CorruptBlob(t *testing.T) {
	if _, err := MigrateIntelligenceData([]byte(`{not json`), 1); err == nil {
		t.Error("expected decode error for corrupt v1 blob")
	}
}

func TestCanonicalText_Deterministic(t *testing.T) {
	data := IntelligenceData{
		Title:    "Widget",
		Summary:  "A widget.",
		Features: []string{"small", "blue"},
		Benefits: []string{"cheap"},
	}
	a := data.CanonicalText()
	b := data.CanonicalText()
	if a != b {
		t.Error("CanonicalText must be deterministic")
	}
	if !strings.Contains(a, "Widget") || !strings.Contains(a, "feature: small") {
		t.Errorf("CanonicalText = %q", a)
	}
}

func TestHasEmbedding(t *testing.T) {
	with := &CompiledIntelligence{Embedding: []float32{1}}
	without := &CompiledIntelligence{}
	if !with.HasEmbedding() || without.HasEmbedding() {
		t.Error("HasEmbedding misreports")
	}
}
