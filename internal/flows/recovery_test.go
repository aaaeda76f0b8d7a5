package flows

import "testing"

func TestClaimFingerprintOrderIndependent(t *testing.T) {
	a := ClaimFingerprint(map[string]string{"email": "jane@example.com", "mobile": "+94771234567"})
	b := ClaimFingerprint(map[string]string{"mobile": "+94771234567", "email": "jane@example.com", "blank": ""})
	if a == "" || a != b {
		t.Fatalf("expected matching non-empty fingerprints, got %q and %q", a, b)
	}
	if c := ClaimFingerprint(map[string]string{"email": "other@example.com"}); c == a {
		t.Fatal("different claims should not share a fingerprint")
	}
}

func TestClaimFingerprintEmptyClaims(t *testing.T) {
	cases := []map[string]string{
		nil,
		{},
		{"email": ""},
		{"": "jane@example.com"},
		{"email": "", "": "x"},
	}
	for _, claims := range cases {
		if got := ClaimFingerprint(claims); got != "" {
			t.Fatalf("expected empty fingerprint for %v, got %q", claims, got)
		}
	}
}
