package main

import (
	"os"
	"path/filepath"
	"testing"

	"task-recipes/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStructFields(t *testing.T) {
	fields := generateStructFields(map[string]interface{}{
		"user_id": map[string]interface{}{"type": "string", "description": "Owner"},
		"count":   map[string]interface{}{"type": "integer"},
		"broken":  "not a schema",
	})
	assert.Equal(t, "\tCount int `json:\"count\"`\n\tUserId string `json:\"user_id\"` // Owner", fields)
}

func TestTaskDir(t *testing.T) {
	dir, pkg, err := taskDir("out", "signups.populate_workspace")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "signups", "populate-workspace"), dir)
	assert.Equal(t, "populateworkspace", pkg)

	_, _, err = taskDir("out", "nodot")
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	out := t.TempDir()
	retries := 3
	entry := registry.TaskEntry{
		Key:         "reports.build_digest",
		DisplayName: "Build Digest",
		Description: "Build the weekly digest",
		Retries:     &retries,
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"week": map[string]interface{}{"type": "integer"}},
		},
	}

	dir, err := generate(entry, out)
	require.NoError(t, err)

	src, err := os.ReadFile(filepath.Join(dir, "handler.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "package builddigest")
	assert.Contains(t, string(src), `const TaskKey = "reports.build_digest"`)
	assert.Contains(t, string(src), "Week int `json:\"week\"`")
	assert.Contains(t, string(src), "Retries:     3,")
	assert.FileExists(t, filepath.Join(dir, "handler_test.go"))

	_, err = generate(entry, out)
	assert.Error(t, err, "existing handlers are not overwritten")
}
