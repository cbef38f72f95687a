package domain

import (
	"testing"

	"signalroom/internal/core/normalize"
	perr "signalroom/internal/platform/errors"
)

func TestLookupClient(t *testing.T) {
	t.Parallel()

	if c, err := LookupClient(""); err != nil || c.ID != DefaultClient {
		t.Fatalf("default = %+v %v", c, err)
	}
	if c, err := LookupClient(" CTI "); err != nil || c.Name != "ClayTargetInstruction" {
		t.Fatalf("cti = %+v %v", c, err)
	}
	_, err := LookupClient("acme")
	if !perr.IsCode(err, perr.ErrorCodeConfig) {
		t.Fatalf("unknown client: %v", err)
	}
}

func TestParseSource(t *testing.T) {
	t.Parallel()

	for _, n := range AllSources {
		if got, err := ParseSource(string(n)); err != nil || got != n {
			t.Fatalf("%s: %v", n, err)
		}
	}
	if _, err := ParseSource("facebook"); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}

func TestRowKey(t *testing.T) {
	t.Parallel()

	row := normalize.Row{"date": "2025-12-20", "id": int64(7), "name": "a|b", normalize.ColLoadedAt: "x"}
	if got := RowKey(row, []string{"date", "id"}); got != "2025-12-20|7" {
		t.Fatalf("key = %q", got)
	}
	if got := RowKey(row, []string{"name"}); got != `a\|b` {
		t.Fatalf("escaped = %q", got)
	}

	other := normalize.Row{"date": "2025-12-20", "id": int64(7), "name": "a|b", normalize.ColLoadedAt: "y"}
	if RowKey(row, nil) != RowKey(other, nil) {
		t.Fatalf("content hash must ignore the load stamp")
	}
	other["id"] = int64(8)
	if RowKey(row, nil) == RowKey(other, nil) {
		t.Fatalf("content hash must see values")
	}
}
