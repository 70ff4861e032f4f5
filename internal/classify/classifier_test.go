package classify

import (
	"math/rand"
	"testing"

	"github.com/shaiso/Gatekeeper/internal/gating"
)

func testClassifier() *Classifier {
	return New(&gating.Table{
		Flags: []gating.FlagRule{
			{Name: "SOURCE_CHANGED", Paths: []string{"src/**", "go.mod"}},
			{Name: "TESTING_CHANGED", Paths: []string{"tests/**", "testdata/**"}},
			{Name: "DOCS_CHANGED", Paths: []string{"docs/**", "*.md"}},
		},
	})
}

func TestClassify_SourceOnly(t *testing.T) {
	flags := testClassifier().Classify([]string{"src/inspector/core.go"})

	if !flags.IsSet("SOURCE_CHANGED") {
		t.Error("SOURCE_CHANGED should be true")
	}
	if flags.IsSet("TESTING_CHANGED") {
		t.Error("TESTING_CHANGED should be false")
	}
}

func TestClassify_TestingOnly(t *testing.T) {
	flags := testClassifier().Classify([]string{"tests/fixtures/sample.json"})

	if flags.IsSet("SOURCE_CHANGED") {
		t.Error("SOURCE_CHANGED should be false")
	}
	if !flags.IsSet("TESTING_CHANGED") {
		t.Error("TESTING_CHANGED should be true")
	}
}

func TestClassify_UnmatchedPathIgnored(t *testing.T) {
	// CHANGELOG.md попадает под "*.md" → DOCS_CHANGED, но не под source/testing.
	// Файл без единого правила вообще не влияет на флаги.
	flags := testClassifier().Classify([]string{"CHANGELOG.md", ".editorconfig"})

	if flags.IsSet("SOURCE_CHANGED") || flags.IsSet("TESTING_CHANGED") {
		t.Error("source/testing flags should be false")
	}
	if !flags.IsSet("DOCS_CHANGED") {
		t.Error("DOCS_CHANGED should be true for CHANGELOG.md")
	}
}

func TestClassify_NoRuleMatches(t *testing.T) {
	flags := testClassifier().Classify([]string{".editorconfig", "LICENSE"})

	for name, v := range flags {
		if v {
			t.Errorf("flag %s should be false", name)
		}
	}
}

func TestClassify_EmptyInput(t *testing.T) {
	// Пустой набор путей — не ошибка, все флаги false
	flags := testClassifier().Classify(nil)

	if len(flags) != 3 {
		t.Fatalf("expected 3 flags, got %d", len(flags))
	}
	if flags.Any() {
		t.Error("all flags should be false for empty input")
	}
}

func TestClassify_OrderIndependent(t *testing.T) {
	c := testClassifier()
	paths := []string{"src/a.go", "tests/b.json", "docs/c.md", "LICENSE", "go.mod"}

	want := c.Classify(paths)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), paths...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := c.Classify(shuffled)
		for name := range want {
			if got[name] != want[name] {
				t.Fatalf("flag %s differs after shuffle: got %v, want %v",
					name, got[name], want[name])
			}
		}
	}
}

func TestClassify_PathNormalization(t *testing.T) {
	c := testClassifier()

	flags := c.Classify([]string{"./src/a.go"})
	if !flags.IsSet("SOURCE_CHANGED") {
		t.Error("leading ./ should be stripped")
	}

	flags = c.Classify([]string{`src\win\path.go`})
	if !flags.IsSet("SOURCE_CHANGED") {
		t.Error("backslashes should be normalized")
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"src/a/b.go", "src/**", true},
		{"src", "src/**", true},
		{"srcx/a.go", "src/**", false},
		{"go.mod", "go.mod", true},
		{"go.sum", "go.mod", false},
		{"README.md", "*.md", true},
		{"docs/README.md", "*.md", false}, // glob не пересекает "/"
		{"docs/x.md", "docs/*.md", true},
	}

	for _, tt := range tests {
		if got := matches(tt.path, tt.pattern); got != tt.want {
			t.Errorf("matches(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
		}
	}
}

func TestAllTrue(t *testing.T) {
	flags := testClassifier().AllTrue()
	if len(flags) != 3 || !flags.IsSet("SOURCE_CHANGED") || !flags.IsSet("TESTING_CHANGED") || !flags.IsSet("DOCS_CHANGED") {
		t.Errorf("AllTrue should set every flag: %v", flags)
	}
}
