package postgres

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(schemaSQL)
	if len(stmts) == 0 {
		t.Fatalf("expected embedded schema statements")
	}
	for _, s := range stmts {
		if strings.HasSuffix(s, ";") {
			t.Fatalf("statement should not keep its terminator: %q", s)
		}
	}
	if !strings.Contains(stmts[0], "catalog_services") {
		t.Fatalf("catalog_services must be created first, got %q", stmts[0])
	}

	got := splitStatements("SELECT 1;\n\n  ;\nSELECT 2;\n")
	if len(got) != 2 || got[1] != "SELECT 2" {
		t.Fatalf("unexpected split %q", got)
	}
}
