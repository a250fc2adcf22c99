package mathx

import "testing"

func TestSeedKey_Deterministic(t *testing.T) {
	a := SeedKey(0xDEADBEEF)
	b := SeedKey(0xDEADBEEF)
	if a != b {
		t.Fatalf("same seed produced different keys")
	}
	c := SeedKey(0xDEADBEF0)
	if a == c {
		t.Fatalf("adjacent seeds produced identical keys")
	}
}

func TestSeedKey_ZeroSeedNotZeroKey(t *testing.T) {
	k := SeedKey(0)
	if k == ([32]byte{}) {
		t.Fatalf("zero seed produced all-zero key")
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(-1, 0, 1); got != 0 {
		t.Fatalf("Clamp(-1)=%v", got)
	}
	if got := Clamp(2, 0, 1); got != 1 {
		t.Fatalf("Clamp(2)=%v", got)
	}
	if got := Clamp(0.25, 0, 1); got != 0.25 {
		t.Fatalf("Clamp(0.25)=%v", got)
	}
}
