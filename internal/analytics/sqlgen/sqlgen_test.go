package sqlgen

import (
	"testing"

	"github.com/antigravity/cogmem/internal/analytics/enrich"
)

func TestParseGenerationResponseFromJSON(t *testing.T) {
	raw := "```json\n{\"sql\": \"SELECT 1;\", \"explanation\": \"trivial\", \"confidence\": 0.9, \"complexity_level\": \"simple\", \"estimated_rows\": 1}\n```"
	r := parseGenerationResponse(raw)
	if r.SQL != "SELECT 1;" {
		t.Errorf("SQL = %q, want %q", r.SQL, "SELECT 1;")
	}
	if r.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", r.Confidence)
	}
}

func TestParseGenerationResponseFromSQLBlock(t *testing.T) {
	raw := "Sure, here you go:\n```sql\nSELECT * FROM orders;\n```\n"
	r := parseGenerationResponse(raw)
	if r.SQL != "SELECT * FROM orders;" {
		t.Errorf("SQL = %q, want %q", r.SQL, "SELECT * FROM orders;")
	}
	if r.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5 (free-form fallback)", r.Confidence)
	}
}

func TestPostProcessAddsSemicolonAndLimit(t *testing.T) {
	got := postProcess(Result{SQL: "SELECT   *\nFROM   orders"})
	if got.SQL != "SELECT * FROM orders LIMIT 1000;" {
		t.Errorf("postProcess SQL = %q", got.SQL)
	}
}

func TestPostProcessLeavesExistingLimit(t *testing.T) {
	got := postProcess(Result{SQL: "SELECT * FROM orders LIMIT 5"})
	if got.SQL != "SELECT * FROM orders LIMIT 5;" {
		t.Errorf("postProcess SQL = %q", got.SQL)
	}
}

func TestValidateAgainstSchemaFlagsUnknownTable(t *testing.T) {
	semantic := enrich.SemanticMetadata{
		OriginalMetadata: enrich.Metadata{
			Tables: []enrich.TableMeta{{TableName: "orders"}},
		},
	}
	errs := validateAgainstSchema("SELECT * FROM ordrs JOIN orders ON 1=1", semantic)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one validation error, got %v", errs)
	}
}

func TestAutoRepairReplacesMisspelledTable(t *testing.T) {
	semantic := enrich.SemanticMetadata{
		OriginalMetadata: enrich.Metadata{
			Tables: []enrich.TableMeta{{TableName: "orders"}},
		},
	}
	errs := []string{`table "order" does not exist`}
	got := autoRepair("SELECT * FROM order", errs, semantic)
	if got != "SELECT * FROM orders" {
		t.Errorf("autoRepair = %q, want %q", got, "SELECT * FROM orders")
	}
}

func TestDetectLanguage(t *testing.T) {
	if got := detectLanguage("show me all customers"); got != "English" {
		t.Errorf("detectLanguage(english) = %q", got)
	}
	if got := detectLanguage("显示所有客户"); got != "Chinese" {
		t.Errorf("detectLanguage(chinese) = %q", got)
	}
}

func TestDetectDomainFallsBackToGeneralBusiness(t *testing.T) {
	semantic := enrich.SemanticMetadata{
		DomainClassification: enrich.DomainClassification{PrimaryDomain: "something_unmapped"},
	}
	if got := detectDomain(semantic); got != "general business" {
		t.Errorf("detectDomain = %q, want general business", got)
	}
	semantic.DomainClassification.PrimaryDomain = "ecommerce"
	if got := detectDomain(semantic); got != "ecommerce" {
		t.Errorf("detectDomain = %q, want ecommerce", got)
	}
}
