package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Unauthorized(errors.New("expired")), http.StatusUnauthorized},
		{UpstreamFetch(errors.New("404")), http.StatusBadRequest},
		{New(KindBadRequest, "image_url is required", nil), http.StatusBadRequest},
		{Inference(errors.New("timeout")), http.StatusBadGateway},
		{MalformedResponse(errors.New("bad json")), http.StatusBadGateway},
		{StorageFault(errors.New("bad json")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMalformedResponseIsInference(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", MalformedResponse(errors.New("x")))
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatal("expected malformed response sentinel to match")
	}
	if !errors.Is(err, ErrInference) {
		t.Fatal("expected malformed response to count as inference error")
	}
	if errors.Is(Inference(nil), ErrMalformedResponse) {
		t.Fatal("generic inference error must not match malformed response")
	}
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := Unauthorized(errors.New("token signature mismatch for kid abc"))
	if got := PublicMessage(err); got != "invalid or missing credentials" {
		t.Fatalf("unexpected public message: %q", got)
	}
	if got := PublicMessage(errors.New("db exploded")); got != "internal server error" {
		t.Fatalf("unexpected public message: %q", got)
	}
	if KindOf(errors.New("x")) != KindInternal {
		t.Fatal("expected internal kind for plain errors")
	}
}
