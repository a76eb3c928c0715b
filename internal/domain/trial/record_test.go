package trial

import (
	"testing"
	"time"
)

func TestRecord_NeedsEmbedding(t *testing.T) {
	const version = "text-embedding-3-small@1536"
	r := Record{ContentHash: "h1"}

	if !r.NeedsEmbedding(version) {
		t.Error("record without a vector needs embedding")
	}

	r.Embedding = EmbeddingState{Status: EmbeddingCurrent, Hash: "h1", Version: version}
	if r.NeedsEmbedding(version) {
		t.Error("current vector at the same hash should be reused")
	}
	if !r.NeedsEmbedding("other-model@768") {
		t.Error("vector from another model version is stale")
	}

	r.ContentHash = "h2"
	if !r.NeedsEmbedding(version) {
		t.Error("changed content hash should require re-embedding")
	}

	r.ContentHash = "h1"
	r.Embedding.Status = EmbeddingFailed
	if !r.NeedsEmbedding(version) {
		t.Error("failed embedding should be retried")
	}
}

func TestRecord_DerivedFields(t *testing.T) {
	start := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	r := Record{
		Conditions:    []string{"Lung Cancer", "NSCLC"},
		Interventions: []Intervention{{Type: "DRUG", Name: "Pembrolizumab"}, {Type: "OTHER"}},
		StartDate:     &start,
	}
	if r.PrimaryCondition() != "Lung Cancer" {
		t.Errorf("PrimaryCondition() = %q", r.PrimaryCondition())
	}
	if r.StartYear() != 2021 {
		t.Errorf("StartYear() = %d", r.StartYear())
	}
	if names := r.InterventionNames(); len(names) != 1 || names[0] != "Pembrolizumab" {
		t.Errorf("InterventionNames() = %v", names)
	}

	var empty Record
	if empty.PrimaryCondition() != "" || empty.StartYear() != 0 {
		t.Error("empty record should have no derived values")
	}
}
