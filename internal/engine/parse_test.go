package engine_test

import (
	_ "embed"
	"testing"

	"spiderfetch/internal/engine"
)

//go:embed testdata/stdout_single.txt
var stdoutSingle string

//go:embed testdata/stdout_playlist.txt
var stdoutPlaylist string

func TestParseStdout(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   []engine.ResultJSON
	}{
		{
			name:   "single item with path",
			stdout: stdoutSingle,
			want: []engine.ResultJSON{
				{ID: "one", Title: "First", Ext: "mp4", Filepath: "/data/staging/First.mp4"},
			},
		},
		{
			name:   "playlist with stray lines and an item that never moved",
			stdout: stdoutPlaylist,
			want: []engine.ResultJSON{
				{ID: "a1", Title: "Alpha", PlaylistIndex: 1, Filepath: "/data/staging/Alpha.mp4"},
				{ID: "c3", Title: "Gamma", PlaylistIndex: 3, Filepath: "/data/staging/Gamma.webm"},
				{ID: "d4", Title: "Delta", PlaylistIndex: 4},
			},
		},
		{
			name:   "empty",
			stdout: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.ParseStdout(tc.stdout)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d results, want %d", len(got), len(tc.want))
			}

			for idx, result := range got {
				want := tc.want[idx]
				if result.ID != want.ID || result.Title != want.Title ||
					result.PlaylistIndex != want.PlaylistIndex || result.Filepath != want.Filepath {
					t.Errorf("result %d = %+v, want %+v", idx, result, want)
				}
			}
		})
	}
}
