package utils

import "testing"

func TestHashString(t *testing.T) {
	// md5("hello")
	if got := HashString("hello"); got != "5d41402abc4b2a76b9719d911017c592" {
		t.Fatalf("HashString(hello) = %s", got)
	}
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint("포인트가 안 들어와요", "KR", "google_play")

	if again := Fingerprint("포인트가 안 들어와요", "KR", "google_play"); again != base {
		t.Fatalf("fingerprint not stable: %s vs %s", base, again)
	}
	if base != HashString("포인트가 안 들어와요_KR_google_play") {
		t.Fatalf("fingerprint layout changed")
	}

	variants := [][3]string{
		{"포인트가 안 들어와요 ", "KR", "google_play"},
		{"포인트가 안 들어와요", "US", "google_play"},
		{"포인트가 안 들어와요", "KR", "app_store"},
	}
	for _, v := range variants {
		if Fingerprint(v[0], v[1], v[2]) == base {
			t.Errorf("fingerprint collision for %q", v)
		}
	}
}
