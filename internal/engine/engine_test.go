package engine_test

import (
	"errors"
	"testing"

	"spiderfetch/internal/engine"
	"spiderfetch/internal/errs"
)

func TestCleanError(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "prefixed",
			raw:  "ERROR: [youtube] abc: Video unavailable",
			want: "[youtube] abc: Video unavailable",
		},
		{
			name: "prefix after warnings",
			raw:  "WARNING: slow\nERROR: Private video\nERROR: second",
			want: "Private video",
		},
		{
			name: "no prefix keeps last line",
			raw:  "exit status 1\n\n  something broke  \n",
			want: "something broke",
		},
		{
			name: "empty",
			raw:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.CleanError(tt.raw); got != tt.want {
				t.Errorf("CleanError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIsEngine(t *testing.T) {
	var err error = &engine.Error{Msg: "Video unavailable"}

	if !errors.Is(err, errs.ErrEngine) {
		t.Error("expected engine error to match ErrEngine")
	}

	var engErr *engine.Error
	if !errors.As(err, &engErr) || engErr.Msg != "Video unavailable" {
		t.Errorf("errors.As() = %v", engErr)
	}
}
