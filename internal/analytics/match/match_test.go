package match

import (
	"context"
	"testing"

	"github.com/antigravity/cogmem/internal/analytics/enrich"
)

func TestMatchExactEntityNoEmbedder(t *testing.T) {
	semantic := enrich.SemanticMetadata{
		BusinessEntities: []enrich.BusinessEntity{
			{EntityName: "customers", EntityType: "entity", KeyAttributes: []string{"id", "email"}},
			{EntityName: "orders", EntityType: "transaction", KeyAttributes: []string{"order_id"}},
		},
		SemanticTags: map[string][]string{},
	}

	m := NewMatcher(nil)
	qc, matches, plan, err := m.Match(context.Background(), "how many customers do we have", semantic)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}

	if qc.BusinessIntent != "count" {
		t.Errorf("BusinessIntent = %q, want count", qc.BusinessIntent)
	}

	found := false
	for _, mm := range matches {
		if mm.EntityName == "customers" && mm.MatchType == "exact" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an exact match on customers, got %+v", matches)
	}

	if len(plan.PrimaryTables) == 0 {
		t.Error("expected at least one primary table in the query plan")
	}
}

func TestInferIntent(t *testing.T) {
	cases := map[string]string{
		"how many orders do we have": "count",
		"total revenue this month":   "aggregate",
		"revenue trend over time":    "trend_analysis",
		"compare q1 versus q2":       "comparison",
		"top 10 customers":          "ranking",
		"list all customers":        "retrieval",
	}
	for q, want := range cases {
		if got := inferIntent(q); got != want {
			t.Errorf("inferIntent(%q) = %q, want %q", q, got, want)
		}
	}
}
