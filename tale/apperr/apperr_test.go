package apperr

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
)

func TestIs_MatchesByCodeThroughWrapping(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("step: %w", Wrap(io.EOF, CodeUpstream, "completion failed"))
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream match")
	}
	if errors.Is(err, ErrConfiguration) {
		t.Fatalf("unexpected ErrConfiguration match")
	}
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected cause to stay reachable")
	}
}

func TestAs_DefaultsToInternal(t *testing.T) {
	t.Parallel()

	got := As(io.EOF)
	if got.Code != CodeInternal || got.HTTPStatus() != http.StatusInternalServerError {
		t.Fatalf("got code=%s status=%d", got.Code, got.HTTPStatus())
	}
	if s := As(Newf(CodeNotFound, "save %q", "x")).HTTPStatus(); s != http.StatusNotFound {
		t.Fatalf("status=%d", s)
	}
}
