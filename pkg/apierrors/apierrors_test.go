package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestConstructors(t *testing.T) {
	cases := []struct {
		err    *APIError
		status int
		code   string
	}{
		{Unauthenticated("x"), http.StatusUnauthorized, "unauthenticated"},
		{Forbidden("x"), http.StatusForbidden, "forbidden"},
		{NotFound("x"), http.StatusNotFound, "not_found"},
		{BadRequest("x"), http.StatusBadRequest, "bad_request"},
		{Unprocessable("x"), http.StatusUnprocessableEntity, "unprocessable_entity"},
		{Conflict("x"), http.StatusConflict, "conflict"},
		{TooManyRequests("x"), http.StatusTooManyRequests, "rate_limit_exceeded"},
	}
	for _, tc := range cases {
		if tc.err.Status != tc.status || tc.err.Code != tc.code {
			t.Fatalf("unexpected taxonomy entry: %+v", tc.err)
		}
	}
}

func TestInternalAllocatesCorrelationID(t *testing.T) {
	a := Internal(errors.New("db exploded"))
	b := Internal(errors.New("db exploded"))
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Fatalf("correlation ids not unique: %q %q", a.ID, b.ID)
	}
	if a.Detail == "db exploded" {
		t.Fatalf("cause leaked into detail: %+v", a)
	}
	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "db exploded") {
		t.Fatalf("cause leaked on the wire: %s", raw)
	}
}

func TestFrom(t *testing.T) {
	typed := Forbidden("nope")
	if got := From(typed); got != typed {
		t.Fatalf("typed error not passed through: %+v", got)
	}
	wrapped := fmt.Errorf("context: %w", typed)
	if got := From(wrapped); got != typed {
		t.Fatalf("wrapped typed error not unwrapped: %+v", got)
	}
	plain := From(errors.New("boom"))
	if plain.Status != http.StatusInternalServerError || plain.ID == "" {
		t.Fatalf("plain error not normalized: %+v", plain)
	}
	if From(nil) != nil {
		t.Fatalf("nil error produced a value")
	}
}

func TestWithSourceAndDetail(t *testing.T) {
	base := BadRequest("bad field")
	withPtr := base.WithPointer("/data/attributes/title")
	if withPtr.Src == nil || withPtr.Src.Pointer != "/data/attributes/title" {
		t.Fatalf("pointer not set: %+v", withPtr)
	}
	if base.Src != nil {
		t.Fatalf("WithPointer mutated the receiver: %+v", base)
	}

	withParam := base.WithParameter("limit")
	if withParam.Src == nil || withParam.Src.Parameter != "limit" {
		t.Fatalf("parameter not set: %+v", withParam)
	}

	withDetail := base.WithDetail("field %q is invalid", "title")
	if withDetail.Detail != `field "title" is invalid` {
		t.Fatalf("unexpected detail: %+v", withDetail)
	}
}

func TestErrorString(t *testing.T) {
	if got := Forbidden("no access").Error(); got != "Forbidden: no access" {
		t.Fatalf("unexpected error string: %q", got)
	}
	bare := &APIError{Title: "Conflict"}
	if got := bare.Error(); got != "Conflict" {
		t.Fatalf("unexpected bare error string: %q", got)
	}
}
