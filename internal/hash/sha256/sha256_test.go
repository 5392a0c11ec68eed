package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestDeterministic(t *testing.T) {
	t.Parallel()

	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	require.Equal(t, want, Digest([]byte("hello world")))
	require.Equal(t, Digest([]byte("hello world")), Digest([]byte("hello world")))
}

func TestBodyPath(t *testing.T) {
	t.Parallel()

	body := []byte("hello world")
	digest := Digest(body)
	require.Equal(t, "bodies/abc/"+digest+".html", BodyPath("/bodies/", "abc", body))
	require.Equal(t, "abc/"+digest+".html", BodyPath("", "abc", body))
}
