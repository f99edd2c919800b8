package storage

import "testing"

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"porto-velho", "porto-velho"},
		{"Porto Velho", "Porto-Velho"},
		{"../../etc/passwd", "-..-etc-passwd"},
		{"run_2024.02.14", "run_2024.02.14"},
		{"...", ""},
	}
	for _, tc := range cases {
		if got := sanitizeName(tc.in); got != tc.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestUploadKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"porto-velho", "uploads/porto-velho.json"},
		{"porto-velho.json", "uploads/porto-velho.json"},
		{"data.json.json", "uploads/data.json.json"},
		{"Porto Velho", "uploads/Porto-Velho.json"},
	}
	for _, tc := range cases {
		if got := uploadKey(tc.in); got != tc.want {
			t.Errorf("uploadKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
