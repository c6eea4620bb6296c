package deps_test

import (
	"testing"

	"telecine/internal/deps"
	"telecine/internal/testsupport"
)

func TestCheckBinariesReportsStubbedTools(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	results := deps.CheckBinaries(deps.Runtime(cfg))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, status := range results {
		if !status.Available {
			t.Errorf("%s should be available, detail: %s", status.Name, status.Detail)
		}
	}
}

func TestCheckBinariesMissingBinary(t *testing.T) {
	results := deps.CheckBinaries([]deps.Requirement{
		{Name: "Ghost", Command: "telecine-no-such-binary"},
		{Name: "Unset", Command: "  "},
	})
	if results[0].Available {
		t.Fatal("nonexistent binary reported available")
	}
	if results[1].Detail != "command not configured" {
		t.Fatalf("unexpected detail %q", results[1].Detail)
	}
}
