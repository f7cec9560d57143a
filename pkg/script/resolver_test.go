package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseRef(t *testing.T) {
	inline := ParseRef("def transform(value):\n    return value")
	assert.NotEmpty(t, inline.Inline)
	assert.Nil(t, inline.Git)

	file := ParseRef("file:///etc/idgov/scripts/x.star")
	assert.Equal(t, "/etc/idgov/scripts/x.star", file.File)

	git := ParseRef("git+https://host/scripts.git#main:transforms/x.star")
	require.NotNil(t, git.Git)
	assert.Equal(t, "https://host/scripts.git", git.Git.Repository)
	assert.Equal(t, "main", git.Git.Ref)
	assert.Equal(t, "transforms/x.star", git.Git.Path)
}

func TestResolverEvaluatesFileRef(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upper.star")
	require.NoError(t, os.WriteFile(path, []byte("def transform(value, **kw):\n    return value.upper()\n"), 0o644))

	r := NewResolver(NewLoader(dir), NewEvaluator(zap.NewNop()))
	out, err := r.Evaluate(context.Background(), "file://"+path, map[string]any{"value": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)
}

func TestResolverEvaluatesInline(t *testing.T) {
	r := NewResolver(NewLoader(t.TempDir()), NewEvaluator(zap.NewNop()))
	out, err := r.Evaluate(context.Background(), "def transform(value, **kw):\n    return value + 1\n", map[string]any{"value": int64(41)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), out)
}
