package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestCatalog_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	cat := &TaskCatalog{Version: "1.0.0"}
	cat.Upsert(TaskEntry{Key: "chaos.ping", Retries: intPtr(10), RetryDelay: "1s"})
	cat.Upsert(TaskEntry{Key: "chaos.ping", Retries: intPtr(3)})
	require.NoError(t, cat.Save(path))

	loaded, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, loaded.Tasks, 1)
	assert.Equal(t, 3, *loaded.Tasks[0].Retries)
	assert.NotEmpty(t, loaded.LastUpdated)
}

func TestCatalog_Validate(t *testing.T) {
	tests := []struct {
		name  string
		tasks []TaskEntry
		errs  int
	}{
		{"valid", []TaskEntry{{Key: "a.b", Timeout: "30s", ImplementationStatus: "verified"}}, 0},
		{"missing key", []TaskEntry{{}}, 1},
		{"duplicate key", []TaskEntry{{Key: "a.b"}, {Key: "a.b"}}, 1},
		{"bad duration", []TaskEntry{{Key: "a.b", RetryDelay: "soon"}}, 1},
		{"negative retries", []TaskEntry{{Key: "a.b", Retries: intPtr(-1)}}, 1},
		{"unknown status", []TaskEntry{{Key: "a.b", ImplementationStatus: "shipped"}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := &TaskCatalog{Tasks: tt.tasks}
			assert.Len(t, cat.Validate(), tt.errs)
		})
	}
}

func TestLoadCatalog_Missing(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
