package mailparse

import (
	"strings"
	"testing"

	"github.com/brandon/mail-engine/pkg/types"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "tags stripped",
			html: "<p>Hello <b>World</b></p>",
			want: "Hello World",
		},
		{
			name: "style removed",
			html: "<style>body { color: red }</style><div>visible</div>",
			want: "visible",
		},
		{
			name: "script removed",
			html: "<script>alert('x')</script>text",
			want: "text",
		},
		{
			name: "entities unescaped",
			html: "a&nbsp;&amp;&nbsp;b &lt;tag&gt; &quot;q&quot; it&#39;s",
			want: `a & b <tag> "q" it's`,
		},
		{
			name: "whitespace collapsed",
			html: "  a \n\n  b\t c  ",
			want: "a b c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractText(tt.html); got != tt.want {
				t.Errorf("ExtractText(%q) = %q; want %q", tt.html, got, tt.want)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	t.Run("prefers plain text", func(t *testing.T) {
		if got := Snippet("plain", "<p>html</p>"); got != "plain" {
			t.Errorf("Snippet() = %q; want %q", got, "plain")
		}
	})

	t.Run("falls back to html", func(t *testing.T) {
		if got := Snippet("", "<p>from html</p>"); got != "from html" {
			t.Errorf("Snippet() = %q; want %q", got, "from html")
		}
	})

	t.Run("never empty", func(t *testing.T) {
		if got := Snippet("", ""); got != types.SnippetPlaceholder {
			t.Errorf("Snippet() = %q; want placeholder", got)
		}
	})

	t.Run("capped at ceiling", func(t *testing.T) {
		long := strings.Repeat("ä", 500)
		got := Snippet(long, "")
		if runes := []rune(got); len(runes) != types.MaxSnippetChars {
			t.Errorf("snippet length = %d runes; want %d", len(runes), types.MaxSnippetChars)
		}
	})

	t.Run("newlines collapsed", func(t *testing.T) {
		if got := Snippet("line one\r\nline two", ""); got != "line one line two" {
			t.Errorf("Snippet() = %q; want collapsed", got)
		}
	})
}
