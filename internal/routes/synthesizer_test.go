package routes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"burrow/internal/registry"
)

const baseConfig = `worker_processes auto;

events {
    worker_connections 1024;
}

http {
    include mime.types;

    server {
        listen 80;
        server_name _;
    }
}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nginx.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readConfig(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestApplyCreatesBlockAfterAnchor(t *testing.T) {
	path := writeConfig(t, baseConfig)
	synth := NewSynthesizer(path, 8090)

	entries := []registry.Entry{
		{Name: "app1", Port: 8123},
		{Name: "app2", Port: 8456},
	}
	require.NoError(t, synth.Apply(entries))

	got := readConfig(t, path)
	assert.Contains(t, got, "http {\n    map $subdomain $backend_port {\n        default 8090;\n        app1 8123;\n        app2 8456;\n    }\n    include mime.types;")
	assert.Contains(t, got, "worker_processes auto;", "content outside the block must survive")
	assert.Contains(t, got, "server_name _;")
}

func TestApplyReplacesExistingBlock(t *testing.T) {
	path := writeConfig(t, baseConfig)
	synth := NewSynthesizer(path, 8090)

	require.NoError(t, synth.Apply([]registry.Entry{{Name: "old", Port: 8111}}))
	require.NoError(t, synth.Apply([]registry.Entry{{Name: "fresh", Port: 8222}}))

	got := readConfig(t, path)
	assert.NotContains(t, got, "old 8111;")
	assert.Contains(t, got, "fresh 8222;")
	assert.Contains(t, got, "default 8090;")

	mapping, err := synth.Current()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"default": 8090, "fresh": 8222}, mapping)
}

func TestApplyIsIdempotent(t *testing.T) {
	path := writeConfig(t, baseConfig)
	synth := NewSynthesizer(path, 8090)

	entries := []registry.Entry{{Name: "app1", Port: 8123}}
	require.NoError(t, synth.Apply(entries))
	first := readConfig(t, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, synth.Apply(entries))

	assert.Equal(t, first, readConfig(t, path))
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime(), "unchanged output should not be rewritten")
}

func TestApplyEmptyRegistryKeepsDefaultOnly(t *testing.T) {
	path := writeConfig(t, baseConfig)
	synth := NewSynthesizer(path, 8090)

	require.NoError(t, synth.Apply([]registry.Entry{{Name: "app1", Port: 8123}}))
	require.NoError(t, synth.Apply(nil))

	mapping, err := synth.Current()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"default": 8090}, mapping)
}

func TestApplyMissingFile(t *testing.T) {
	synth := NewSynthesizer(filepath.Join(t.TempDir(), "nope.conf"), 8090)

	err := synth.Apply(nil)
	assert.ErrorIs(t, err, ErrAnchorMissing)
}

func TestApplyMissingAnchor(t *testing.T) {
	path := writeConfig(t, "worker_processes auto;\n")
	synth := NewSynthesizer(path, 8090)

	err := synth.Apply([]registry.Entry{{Name: "app1", Port: 8123}})
	assert.ErrorIs(t, err, ErrAnchorMissing)
	assert.Equal(t, "worker_processes auto;\n", readConfig(t, path), "refusal must leave the file untouched")
}

func TestApplyUnterminatedBlock(t *testing.T) {
	path := writeConfig(t, "http {\n    map $subdomain $backend_port {\n        default 8090;\n")
	synth := NewSynthesizer(path, 8090)

	err := synth.Apply(nil)
	assert.ErrorIs(t, err, ErrAnchorMissing)
}

func TestCurrentMissingBlock(t *testing.T) {
	path := writeConfig(t, baseConfig)
	synth := NewSynthesizer(path, 8090)

	_, err := synth.Current()
	assert.ErrorIs(t, err, ErrAnchorMissing)
}

func TestApplyPreservesIndentationOfExistingBlock(t *testing.T) {
	custom := "http {\n\tmap $subdomain $backend_port {\n\t    default 8090;\n\t}\n}\n"
	path := writeConfig(t, custom)
	synth := NewSynthesizer(path, 8090)

	require.NoError(t, synth.Apply([]registry.Entry{{Name: "app1", Port: 8123}}))

	got := readConfig(t, path)
	assert.Contains(t, got, "\tmap $subdomain $backend_port {")
	assert.Contains(t, got, "\t    app1 8123;")
}
