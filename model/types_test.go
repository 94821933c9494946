package model

import "testing"

func TestRepositoryRefSplit(t *testing.T) {
	tests := []struct {
		ref       RepositoryRef
		owner     string
		name      string
		wantError bool
	}{
		{ref: "agno-agi/agno", owner: "agno-agi", name: "agno"},
		{ref: " octo/hello ", owner: "octo", name: "hello"},
		{ref: "octo", wantError: true},
		{ref: "/hello", wantError: true},
		{ref: "octo/", wantError: true},
		{ref: "a/b/c", wantError: true},
		{ref: "", wantError: true},
	}
	for _, tt := range tests {
		owner, name, err := tt.ref.Split()
		if tt.wantError {
			if err == nil {
				t.Errorf("Split(%q): expected error", tt.ref)
			}
			continue
		}
		if err != nil {
			t.Errorf("Split(%q): unexpected error: %v", tt.ref, err)
			continue
		}
		if owner != tt.owner || name != tt.name {
			t.Errorf("Split(%q) = %q, %q; want %q, %q", tt.ref, owner, name, tt.owner, tt.name)
		}
	}
}

func TestRepositoryRefIsZero(t *testing.T) {
	if !RepositoryRef("").IsZero() || !RepositoryRef("  ").IsZero() {
		t.Error("expected blank refs to be zero")
	}
	if RepositoryRef("octo/hello").IsZero() {
		t.Error("expected non-blank ref to be non-zero")
	}
}
