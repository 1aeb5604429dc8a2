package identity

import (
	"errors"
	"testing"

	"prodintel/internal/types"
)

func TestNormalize_TrackingVariantsShareIdentity(t *testing.T) {
	// Variants of the same product page that must resolve to one identity.
	variants := []string{
		"https://ex.com/p?utm_source=x",
		"https://ex.com/p/",
		"https://EX.com/p",
		"https://ex.com:443/p",
		"https://ex.com/p?fbclid=abc123",
		"https://ex.com/p?utm_campaign=summer&utm_medium=email",
	}

	_, baseHash, err := Normalize("https://ex.com/p")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	for _, v := range variants {
		_, hash, err := Normalize(v)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", v, err)
		}
		if hash != baseHash {
			t.Errorf("Normalize(%q) hash = %s, want %s", v, hash, baseHash)
		}
	}
}

func TestNormalize_PreservesMeaningfulParams(t *testing.T) {
	_, withVariant, err := Normalize("https://ex.com/p?color=red")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	_, without, err := Normalize("https://ex.com/p")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if withVariant == without {
		t.Error("non-tracking query parameter should change the identity")
	}
}

func TestNormalize_QueryOrderIndependent(t *testing.T) {
	_, a, _ := Normalize("https://ex.com/p?size=xl&color=red")
	_, b, _ := Normalize("https://ex.com/p?color=red&size=xl")
	if a != b {
		t.Errorf("query order changed identity: %s vs %s", a, b)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"https://EX.com:443/Product/?utm_source=news&ref=aff&b=2&a=1#reviews",
		"http://shop.example.org:80/item",
		"https://ex.com/p",
	}
	for _, in := range inputs {
		canonical, hash1, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", in, err)
		}
		canonical2, hash2, err := Normalize(canonical)
		if err != nil {
			t.Fatalf("Normalize(canonical %q) failed: %v", canonical, err)
		}
		if canonical2 != canonical || hash2 != hash1 {
			t.Errorf("not idempotent for %q: %q/%s then %q/%s", in, canonical, hash1, canonical2, hash2)
		}
	}
}

func TestNormalize_InvalidURL(t *testing.T) {
	bad := []string{
		"",
		"not a url",
		"/relative/path",
		"ftp://ex.com/p",
		"https://",
	}
	for _, in := range bad {
		_, _, err := Normalize(in)
		if !errors.Is(err, types.ErrInvalidURL) {
			t.Errorf("Normalize(%q) error = %v, want ErrInvalidURL", in, err)
		}
	}
}

func TestNormalize_HashShape(t *testing.T) {
	_, hash, err := Normalize("https://ex.com/p")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(hash))
	}
}
