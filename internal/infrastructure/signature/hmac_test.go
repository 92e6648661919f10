package signature

import "testing"

func TestHMACSigner(t *testing.T) {
	s := NewHMACSigner("secret")
	sig := s.Sign("7", "12", "approve", "2025-03-14T09:00:00Z")

	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if sig != s.Sign("7", "12", "approve", "2025-03-14T09:00:00Z") {
		t.Fatal("signature is not deterministic")
	}
	if !s.Verify(sig, "7", "12", "approve", "2025-03-14T09:00:00Z") {
		t.Fatal("valid signature rejected")
	}
	if s.Verify(sig, "7", "12", "reject", "2025-03-14T09:00:00Z") {
		t.Fatal("signature accepted for different parts")
	}
	if NewHMACSigner("other").Verify(sig, "7", "12", "approve", "2025-03-14T09:00:00Z") {
		t.Fatal("signature accepted under a different key")
	}
	if s.Verify("zz", "7") {
		t.Fatal("malformed signature accepted")
	}
}
