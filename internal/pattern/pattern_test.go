package pattern

import "testing"

const scenario3Line = `"This" is matching pattern`

func mustCompile(t *testing.T, p string, f Flags) *Pattern {
	t.Helper()
	pat, err := Compile(p, f)
	if err != nil {
		t.Fatalf("unexpected compile error for %q: %v", p, err)
	}
	return pat
}

func TestBooleanAndNotExcludes(t *testing.T) {
	pat := mustCompile(t, `("not_match" | "match") & !("pattern")`, Flags{Boolean: true})
	if pat.NewMatcher().HasMatch(scenario3Line) {
		t.Error("expected no match")
	}
}

func TestBooleanOrMatches(t *testing.T) {
	pat := mustCompile(t, `"not_match" | "match"`, Flags{Boolean: true})
	if !pat.NewMatcher().HasMatch(scenario3Line) {
		t.Error("expected match")
	}
}

func TestBooleanLiteralQuotedSubstring(t *testing.T) {
	pat := mustCompile(t, `"\"This\""`, Flags{Boolean: true})
	if !pat.NewMatcher().HasMatch(scenario3Line) {
		t.Error("expected literal quoted substring to match")
	}
}

func TestBooleanUnbalancedQuoteIsInvalid(t *testing.T) {
	_, err := Compile(`"not_match" | "match`, Flags{Boolean: true})
	if err == nil {
		t.Fatal("expected InvalidRegex error for unbalanced quote")
	}
}

func TestScalarPatternCaseInsensitiveByDefault(t *testing.T) {
	pat := mustCompile(t, "this is line", Flags{})
	if !pat.NewMatcher().HasMatch("THIS IS LINE 000042") {
		t.Error("expected case-insensitive match")
	}
}

func TestScalarPatternCaseSensitive(t *testing.T) {
	pat := mustCompile(t, "ABC", Flags{CaseSensitive: true})
	if pat.NewMatcher().HasMatch("abc") {
		t.Error("expected case-sensitive mismatch")
	}
	if !pat.NewMatcher().HasMatch("ABC") {
		t.Error("expected case-sensitive match")
	}
}

func TestPlainTextEscapesMetacharacters(t *testing.T) {
	pat := mustCompile(t, "a.b", Flags{PlainText: true})
	if pat.NewMatcher().HasMatch("axb") {
		t.Error("expected literal dot, not wildcard")
	}
	if !pat.NewMatcher().HasMatch("a.b") {
		t.Error("expected literal match")
	}
}

func TestInverseFlipsResult(t *testing.T) {
	pat := mustCompile(t, "abc", Flags{Inverse: true})
	if pat.NewMatcher().HasMatch("abc") {
		t.Error("expected inverse to suppress a real match")
	}
	if !pat.NewMatcher().HasMatch("xyz") {
		t.Error("expected inverse to report a match on a non-match line")
	}
}

func TestInvalidScalarRegex(t *testing.T) {
	_, err := Compile("(unclosed", Flags{})
	if err == nil {
		t.Fatal("expected InvalidRegex error")
	}
}

func TestBooleanParensGrouping(t *testing.T) {
	pat := mustCompile(t, `!("a" & "b")`, Flags{Boolean: true})
	if pat.NewMatcher().HasMatch("a b") {
		t.Error("expected negated conjunction to exclude a line containing both atoms")
	}
	if !pat.NewMatcher().HasMatch("a only") {
		t.Error("expected negated conjunction to match a line containing only one atom")
	}
}
