package urlnorm

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips utm parameters",
			in:   "https://x.com/a?z=1&utm_source=foo",
			want: "https://x.com/a?z=1",
		},
		{
			name: "order independent and case insensitive",
			in:   "https://X.com/a/?utm_source=foo&z=1",
			want: "https://x.com/a?z=1",
		},
		{
			name: "drops fragment",
			in:   "https://example.com/post#section-2",
			want: "https://example.com/post",
		},
		{
			name: "drops trailing slash",
			in:   "https://example.com/post/",
			want: "https://example.com/post",
		},
		{
			name: "drops repeated trailing slashes",
			in:   "https://example.com/post//",
			want: "https://example.com/post",
		},
		{
			name: "strips click identifiers",
			in:   "https://example.com/post?fbclid=abc&gclid=def&id=9",
			want: "https://example.com/post?id=9",
		},
		{
			name: "sorts surviving query keys",
			in:   "https://example.com/p?b=2&a=1",
			want: "https://example.com/p?a=1&b=2",
		},
		{
			name: "malformed input is lowercased verbatim",
			in:   "Not A URL",
			want: "not a url",
		},
		{
			name: "missing scheme is treated as malformed",
			in:   "Example.com/Post",
			want: "example.com/post",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://x.com/a?z=1&utm_source=foo",
		"https://Example.com/Path/?ref=twitter#frag",
		"https://x.com/a//",
		"https://x.com/a///",
		"https://example.com",
		"garbage input",
	}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", in)
	}
}

func TestUnwrapRoundTrip(t *testing.T) {
	t.Parallel()

	dest := "https://exampleorg.example/advisory/1"
	wrapped := "https://alerts.example/redirect?url=" + url.QueryEscape(dest)
	require.Equal(t, dest, Unwrap(wrapped))
}

func TestUnwrapPassThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{name: "plain url", in: "https://example.com/post"},
		{name: "relative destination ignored", in: "https://example.com/search?q=/local/path"},
		{name: "non http destination ignored", in: "https://example.com/open?url=ftp://host/file"},
		{name: "malformed input", in: "://broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.in, Unwrap(tt.in))
		})
	}
}

func TestDedupKey(t *testing.T) {
	t.Parallel()

	normalized := "https://exampleorg.example/advisory/1"
	require.Equal(t, normalized, DedupKey(normalized, ScopeURL))
	require.Equal(t, "exampleorg.example", DedupKey(normalized, ScopeHost))
	require.Equal(t, "not a url", DedupKey("not a url", ScopeHost))
}
