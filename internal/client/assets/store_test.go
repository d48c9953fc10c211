package assets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "assets"))
	require.NoError(t, err)

	assert.False(t, s.Exists("a.png"))

	p, err := s.Write("a.png", strings.NewReader("img"))
	require.NoError(t, err)
	assert.True(t, s.Exists("a.png"))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "img", string(b))

	np, err := s.Rename("a.png", "b.png")
	require.NoError(t, err)
	assert.False(t, s.Exists("a.png"))
	assert.True(t, s.Exists("b.png"))
	assert.Equal(t, filepath.Base(np), "b.png")

	require.NoError(t, s.Remove("b.png"))
	require.NoError(t, s.Remove("b.png"))
	assert.False(t, s.Exists("b.png"))

	_, err = s.Write("../evil.png", strings.NewReader("x"))
	assert.Error(t, err)
}
