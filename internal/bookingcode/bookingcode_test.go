package bookingcode

import (
	"strings"
	"testing"
)

func TestGenerateShape(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if len(code) != Length {
			t.Fatalf("len(%q) = %d, want %d", code, len(code), Length)
		}
		for _, ch := range code {
			if !strings.ContainsRune(Alphabet, ch) {
				t.Fatalf("code %q contains %q outside the alphabet", code, ch)
			}
		}
		if strings.ContainsAny(code, "0OI1") {
			t.Fatalf("code %q contains an ambiguous character", code)
		}
	}
}

func TestGenerateCollisionRate(t *testing.T) {
	const n = 10000

	seen := make(map[string]bool, n)
	collisions := 0
	for i := 0; i < n; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if seen[code] {
			collisions++
		}
		seen[code] = true
	}

	// Ожидание по парадоксу дней рождения: n^2 / (2 * 32^6) ≈ 0.05.
	// Десяток совпадений на таком объёме — уже не случайность.
	if collisions > 10 {
		t.Fatalf("collisions = %d on %d codes, generator is skewed", collisions, n)
	}
}
