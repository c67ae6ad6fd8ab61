package coordinator

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSanitizeContent(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		maxRunes int
		want     string
	}{
		{"trims whitespace", "  hello  ", 100, "hello"},
		{"strips angle brackets", "<script>alert(1)</script>", 100, "scriptalert(1)/script"},
		{"empty input", "", 100, ""},
		{"whitespace only", "   \t\n", 100, ""},
		{"brackets only", "<><><>", 100, ""},
		{"caps at rune limit", "abcdef", 3, "abc"},
		{"rune cap counts runes not bytes", "héllo wörld", 5, "héllo"},
		{"zero cap disables limit", strings.Repeat("a", 600), 0, strings.Repeat("a", 600)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeContent(tc.in, tc.maxRunes))
		})
	}
}

func TestSanitizeContentProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.String().Draw(t, "in")
		maxRunes := rapid.IntRange(1, 500).Draw(t, "maxRunes")

		out := SanitizeContent(in, maxRunes)

		if strings.ContainsAny(out, "<>") {
			t.Fatalf("angle bracket survived: %q", out)
		}
		if n := utf8.RuneCountInString(out); n > maxRunes {
			t.Fatalf("length %d exceeds cap %d", n, maxRunes)
		}
	})
}
