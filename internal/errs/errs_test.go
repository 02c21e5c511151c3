package errs

import (
	"errors"
	"syscall"
	"testing"
)

func TestToErrnoMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", NotFound("op", "/x"), syscall.ENOENT},
		{"access denied", AccessDenied("op", "/x"), syscall.EACCES},
		{"transient", Transient("op", "/x", errors.New("boom")), syscall.EAGAIN},
		{"corrupt io", CorruptIO("op", "/x", errors.New("boom")), syscall.EIO},
		{"invalid arg", InvalidArg("op", "/x"), syscall.EINVAL},
		{"nil", nil, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ToErrno(c.err)
			if got != c.want {
				t.Fatalf("ToErrno(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestToErrnoUnrecognizedBecomesEIO(t *testing.T) {
	if got := ToErrno(errors.New("mystery")); got != syscall.EIO {
		t.Fatalf("ToErrno(unrecognized) = %v, want EIO", got)
	}
}

func TestIs(t *testing.T) {
	err := NotFound("op", "/x")
	if !Is(err, KindNotFound) {
		t.Fatalf("Is(err, KindNotFound) = false, want true")
	}
	if Is(err, KindAccessDenied) {
		t.Fatalf("Is(err, KindAccessDenied) = true, want false")
	}
}

func TestWrappedErrorUnwraps(t *testing.T) {
	cause := errors.New("network reset")
	err := Transient("op", "/x", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}
}
