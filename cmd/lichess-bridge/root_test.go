package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/park285/Cheese-Lichess-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCheckConfigPrintsRedactedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"command":"stockfish","account":"MyBot","token":"lip_secret","node_count":800}`), 0o644))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check-config", "--config", path, "--book", "lines.txt"})
	require.NoError(t, cmd.Execute())

	assert.NotContains(t, out.String(), "lip_secret")

	var got config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "***", got.Token)
	assert.Equal(t, config.Command{"stockfish"}, got.Command)
	assert.Equal(t, 800, got.NodeCount)
	assert.Equal(t, "lines.txt", got.Book)
	assert.Equal(t, []string{"standard"}, got.Variants)
}

func TestCheckConfigMissingFile(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check-config", "--config", filepath.Join(t.TempDir(), "nope.json")})
	err := cmd.Execute()
	require.ErrorIs(t, err, config.ErrConfig)
}
