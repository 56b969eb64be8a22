package ptr_test

import (
	"testing"

	"spiderfetch/pkg/ptr"
)

func TestOf(t *testing.T) {
	v := 0.5

	p := ptr.Of(v)
	v = 1

	if *p != 0.5 {
		t.Errorf("Of() must copy, got %v", *p)
	}

	if s := ptr.Of(""); s == nil || *s != "" {
		t.Errorf("Of(\"\") = %v, want pointer to empty string", s)
	}
}

func TestNonZero(t *testing.T) {
	if p := ptr.NonZero(""); p != nil {
		t.Errorf("NonZero(\"\") = %q, want nil", *p)
	}

	if p := ptr.NonZero("downloading"); p == nil || *p != "downloading" {
		t.Errorf("NonZero(\"downloading\") = %v", p)
	}

	if p := ptr.NonZero(0); p != nil {
		t.Errorf("NonZero(0) = %d, want nil", *p)
	}
}
