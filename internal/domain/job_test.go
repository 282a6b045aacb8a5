package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Validate(t *testing.T) {
	file := func(path string) FileSpec { return FileSpec{URL: "http://origin/a.bin", Path: path} }

	tests := []struct {
		name    string
		job     Job
		wantErr error
	}{
		{name: "relative file", job: Job{Files: []FileSpec{file("libs/a.bin")}}},
		{name: "dot segments inside root", job: Job{Files: []FileSpec{file("libs/../a.bin")}}},
		{name: "command dir inside root", job: Job{Commands: []CommandSpec{{Name: "true", Dir: "bin"}}}},
		{name: "command without dir", job: Job{Commands: []CommandSpec{{Name: "true"}}}},
		{name: "empty job", job: Job{}, wantErr: ErrEmptyJob},
		{name: "missing url", job: Job{Files: []FileSpec{{Path: "a"}}}, wantErr: ErrEmptyURL},
		{name: "missing path", job: Job{Files: []FileSpec{file("")}}, wantErr: ErrInvalidInput},
		{name: "absolute file path", job: Job{Files: []FileSpec{file("/etc/cron.d/job")}}, wantErr: ErrInvalidInput},
		{name: "file path escaping root", job: Job{Files: []FileSpec{file("../outside.bin")}}, wantErr: ErrInvalidInput},
		{name: "file path escaping after clean", job: Job{Files: []FileSpec{file("a/../../outside.bin")}}, wantErr: ErrInvalidInput},
		{name: "parent dir only", job: Job{Files: []FileSpec{file("..")}}, wantErr: ErrInvalidInput},
		{name: "absolute command dir", job: Job{Commands: []CommandSpec{{Name: "true", Dir: "/tmp"}}}, wantErr: ErrInvalidInput},
		{name: "command dir escaping root", job: Job{Commands: []CommandSpec{{Name: "true", Dir: "../.."}}}, wantErr: ErrInvalidInput},
		{name: "missing command name", job: Job{Commands: []CommandSpec{{Dir: "bin"}}}, wantErr: ErrInvalidInput},
		{name: "negative threads", job: Job{Threads: -1, Files: []FileSpec{file("a")}}, wantErr: ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestJob_URLsAndPaths(t *testing.T) {
	job := Job{Files: []FileSpec{
		{URL: "http://origin/a", Path: "a"},
		{URL: "http://origin/b", Path: "dir/b"},
	}}

	assert.Equal(t, []string{"http://origin/a", "http://origin/b"}, job.URLs())
	assert.Equal(t, []string{"a", "dir/b"}, job.Paths())
}
