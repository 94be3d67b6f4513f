package enrich

import "testing"

func TestClassifyEntityType(t *testing.T) {
	cases := []struct {
		table string
		cols  []ColumnMeta
		want  string
	}{
		{"product_master", nil, "reference"},
		{"order_transaction", nil, "transaction"},
		{"login_audit_log", nil, "event"},
		{"app_config", nil, "configuration"},
		{"cart_products", []ColumnMeta{{ColumnName: "cart_id"}, {ColumnName: "product_id"}}, "bridge"},
		{"customers", []ColumnMeta{{ColumnName: "id"}}, "entity"},
	}

	for _, c := range cases {
		if got := classifyEntityType(c.table, c.cols); got != c.want {
			t.Errorf("classifyEntityType(%q) = %q, want %q", c.table, got, c.want)
		}
	}
}

func TestBusinessImportance(t *testing.T) {
	if got := businessImportance("customers", 10); got != "high" {
		t.Errorf("businessImportance(customers) = %q, want high", got)
	}
	if got := businessImportance("page_views", 50000); got != "high" {
		t.Errorf("businessImportance(page_views, 50000) = %q, want high (volume fallback)", got)
	}
	if got := businessImportance("page_views", 10); got != "low" {
		t.Errorf("businessImportance(page_views, 10) = %q, want low", got)
	}
}

func TestKeyAttributesCapsAtFive(t *testing.T) {
	cols := make([]ColumnMeta, 0, 10)
	for i := 0; i < 10; i++ {
		cols = append(cols, ColumnMeta{ColumnName: "ref_code"})
	}
	got := keyAttributes(cols)
	if len(got) != 5 {
		t.Fatalf("keyAttributes returned %d entries, want 5 (capped)", len(got))
	}
}

func TestEnricherClassifiesDomainFromTableNames(t *testing.T) {
	meta := Metadata{
		Tables: []TableMeta{
			{TableName: "customers", RecordCount: 500},
			{TableName: "orders", RecordCount: 2000},
			{TableName: "products", RecordCount: 300},
		},
		Columns: []ColumnMeta{
			{TableName: "customers", ColumnName: "id"},
			{TableName: "customers", ColumnName: "email"},
			{TableName: "orders", ColumnName: "order_id"},
			{TableName: "orders", ColumnName: "customer_id"},
			{TableName: "products", ColumnName: "sku"},
		},
	}

	e := NewEnricher()
	semantic := e.Enrich(meta)

	if len(semantic.BusinessEntities) != 3 {
		t.Fatalf("expected 3 business entities, got %d", len(semantic.BusinessEntities))
	}
	if semantic.DomainClassification.PrimaryDomain != "ecommerce" {
		t.Errorf("PrimaryDomain = %q, want ecommerce", semantic.DomainClassification.PrimaryDomain)
	}
	if semantic.DomainClassification.Confidence <= 0 {
		t.Errorf("expected a positive domain confidence, got %v", semantic.DomainClassification.Confidence)
	}
}
