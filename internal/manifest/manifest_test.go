package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
name: forge-1.20
threads: 4
thread_budget: 2
files:
  - url: " https://repo.example/lib/a.jar "
    path: libraries/a.jar
  - url: https://repo.example/lib/b.jar
    path: libraries/b.jar
commands:
  - name: java
    args: ["-jar", "installer.jar", "--install-client"]
    dir: .
`

func TestParse(t *testing.T) {
	job, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "forge-1.20", job.Name)
	assert.Equal(t, 4, job.Threads)
	assert.Equal(t, 2, job.ThreadBudget)
	assert.Equal(t, []string{"https://repo.example/lib/a.jar", "https://repo.example/lib/b.jar"}, job.URLs())
	assert.Equal(t, []string{"libraries/a.jar", "libraries/b.jar"}, job.Paths())
	require.Len(t, job.Commands, 1)
	assert.Equal(t, "java", job.Commands[0].Name)
	assert.Equal(t, []string{"-jar", "installer.jar", "--install-client"}, job.Commands[0].Args)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty document", "", domain.ErrEmptyJob},
		{"no files or commands", "name: nothing\n", domain.ErrEmptyJob},
		{"empty url", "files:\n  - url: ''\n    path: a\n", domain.ErrEmptyURL},
		{"blank url", "files:\n  - url: '   '\n    path: a\n", domain.ErrEmptyURL},
		{"missing path", "files:\n  - url: http://x/a\n", domain.ErrInvalidInput},
		{"unknown key", "file:\n  - url: http://x/a\n", domain.ErrInvalidInput},
		{"negative threads", "threads: -1\nfiles:\n  - url: http://x/a\n    path: a\n", domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoad_DefaultsNameToFileName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("files:\n  - url: http://x/a\n    path: a\n"), 0o644))

	job, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "assets", job.Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshal_RoundTripsThroughParse(t *testing.T) {
	job, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	data, err := Marshal(job)
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, job, again)
}
