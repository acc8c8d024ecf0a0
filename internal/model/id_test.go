package model

import (
	"strings"
	"testing"
)

func TestGenerateID_Format(t *testing.T) {
	for _, idType := range []IDType{IDTypeCommand, IDTypeWorkflow, IDTypeRun, IDTypeAlert} {
		id, err := GenerateID(idType)
		if err != nil {
			t.Fatalf("GenerateID(%s): %v", idType, err)
		}
		if !ValidateID(id) {
			t.Errorf("GenerateID(%s) produced invalid id %q", idType, id)
		}
		if !strings.HasPrefix(id, string(idType)+"_") {
			t.Errorf("id %q missing %s prefix", id, idType)
		}
	}
}

func TestGenerateID_InvalidType(t *testing.T) {
	if _, err := GenerateID("bogus"); err == nil {
		t.Fatal("expected error for invalid id type")
	}
}

func TestGenerateID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateID(IDTypeCommand)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"cmd_1700000000_deadbeef", true},
		{"wf_1700000000_00ff00ff", true},
		{"task_1700000000_deadbeef", false},
		{"cmd_170_deadbeef", false},
		{"cmd_1700000000_DEADBEEF", false},
		{"cmd_1700000000_deadbee", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateID(tt.id); got != tt.valid {
			t.Errorf("ValidateID(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}
