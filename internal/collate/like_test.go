package collate

import "testing"

func mustLike(t *testing.T, s, pattern string, escape rune, want bool) {
	t.Helper()
	got, err := Like(s, pattern, escape)
	if err != nil {
		t.Fatalf("Like(%q,%q): %v", s, pattern, err)
	}
	if got != want {
		t.Fatalf("Like(%q,%q) = %v, want %v", s, pattern, got, want)
	}
}

func TestLikeEmptyPattern(t *testing.T) {
	mustLike(t, "", "", 0, true)
	mustLike(t, "x", "", 0, false)
}

func TestLikeExact(t *testing.T) {
	mustLike(t, "abc", "abc", 0, true)
	mustLike(t, "abc", "abd", 0, false)
	mustLike(t, "abc", "a_c", 0, true)
}

func TestLikePrefix(t *testing.T) {
	mustLike(t, "abba", "abc%", 0, false)
	mustLike(t, "abc", "abc%", 0, true)
	mustLike(t, "abc\n", "abc%", 0, true)
	mustLike(t, "abca", "abc%", 0, true)
	mustLike(t, "abd", "abc%", 0, false)
}

func TestLikeMiddleWildcard(t *testing.T) {
	mustLike(t, "axyzb", "a%b", 0, true)
	mustLike(t, "ab", "a%b", 0, true)
	mustLike(t, "a", "a%b", 0, false)
}

func TestLikeMultipleSegments(t *testing.T) {
	mustLike(t, "foobarbaz", "foo%bar%baz", 0, true)
	mustLike(t, "foobazbar", "foo%bar%baz", 0, false)
	mustLike(t, "fooXbarYbarbaz", "foo%bar%baz", 0, true)
}

func TestLikeEscape(t *testing.T) {
	mustLike(t, "50%", `50\%`, '\\', true)
	mustLike(t, "50x", `50\%`, '\\', false)
	_, err := Like("x", `50\`, '\\')
	if err == nil {
		t.Fatal("expected invalid escape error for dangling escape")
	}
}

func TestLikeUnderscore(t *testing.T) {
	mustLike(t, "cat", "_at", 0, true)
	mustLike(t, "at", "_at", 0, false)
}

// An escaped literal inside a leading or trailing exact segment consumes
// one candidate rune per two pattern runes (`\_` matches one literal '_'),
// so the segment's candidate-rune span must come from segLen, not the raw
// pattern-rune length of the segment.
func TestLikeEscapeInsideLeadingSegment(t *testing.T) {
	mustLike(t, "a_bXYZ", `a\_b%`, '\\', true)
	mustLike(t, "a2bXYZ", `a\_b%`, '\\', false)
}

func TestLikeEscapeInsideTrailingSegment(t *testing.T) {
	mustLike(t, "XYZa_b", `%a\_b`, '\\', true)
	mustLike(t, "XYZa2b", `%a\_b`, '\\', false)
}
