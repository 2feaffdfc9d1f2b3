package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"adds trailing slash", "https://example.com", "https://example.com/"},
		{"keeps trailing slash", "https://example.com/", "https://example.com/"},
		{"strips fragment", "https://example.com/docs#intro", "https://example.com/docs/"},
		{"lowercases host", "https://EXAMPLE.com/Path", "https://example.com/Path/"},
		{"removes default https port", "https://example.com:443/a", "https://example.com/a/"},
		{"removes default http port", "http://example.com:80", "http://example.com/"},
		{"keeps custom port", "http://example.com:8080", "http://example.com:8080/"},
		{"keeps query", "https://example.com/p?a=1", "https://example.com/p?a=1/"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURLRejectsRelative(t *testing.T) {
	t.Parallel()

	_, err := NormalizeURL("/docs/page")
	require.Error(t, err)
}

func TestSanitizeOwnerTag(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "janedoe", SanitizeOwnerTag("jane doe"))
	assert.Equal(t, "user@host", SanitizeOwnerTag(" user@host "))
	assert.Equal(t, "abc", SanitizeOwnerTag("a\tb\nc"))
}
