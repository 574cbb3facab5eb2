package domain

import (
	"errors"
	"testing"
)


func TestNormalizeDigits(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"١٢٣", "123"},
		{"۴۵۶", "456"},
		{"case-٤2", "case-42"},
		{" 77 ", "77"},
		{"", ""},
		{"نظام", "نظام"},
	}
	for _, tc := range tests {
		if got := NormalizeDigits(tc.in); got != tc.want {
			t.Errorf("NormalizeDigits(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDomain_IsValid(t *testing.T) {
	for _, d := range Domains() {
		if !d.IsValid() {
			t.Errorf("%q should be valid", d)
		}
	}
	if Domain("قانون الفضاء").IsValid() {
		t.Error("unknown label reported valid")
	}
	if len(Domains()) != 9 {
		t.Fatalf("expected 9 domains, got %d", len(Domains()))
	}
	if Domains()[0] != DomainLabor {
		t.Errorf("first domain = %q, want %q", Domains()[0], DomainLabor)
	}
}

func TestStageError_Unwrap(t *testing.T) {
	cause := ErrGenerationProvider
	err := NewStageError("writer", cause)
	if !errors.Is(err, ErrStageFailure) {
		t.Error("expected ErrStageFailure in chain")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
}
