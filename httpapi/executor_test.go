package httpapi

import (
	"testing"

	"github.com/atomicbase/restsql/ir"
)

func TestDecodeHeadersEmpty(t *testing.T) {
	headers, err := decodeHeaders("")
	if err != nil {
		t.Fatalf("decodeHeaders: %v", err)
	}
	if headers != nil {
		t.Fatalf("expected nil headers, got %+v", headers)
	}
}

func TestDecodeHeadersParsesEntries(t *testing.T) {
	headers, err := decodeHeaders(`[{"name":"Content-Range","value":"0-9/100"}]`)
	if err != nil {
		t.Fatalf("decodeHeaders: %v", err)
	}
	if len(headers) != 1 || headers[0].Name != "Content-Range" || headers[0].Value != "0-9/100" {
		t.Fatalf("got %+v", headers)
	}
}

type fakeResult struct {
	rowsAffected int64
}

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (f fakeResult) RowsAffected() (int64, error) { return f.rowsAffected, nil }

func TestMinimalResponseInsertStatus(t *testing.T) {
	req := &ir.ApiRequest{Query: ir.Query{Kind: ir.KindInsert}}
	resp := minimalResponse(req, fakeResult{rowsAffected: 3})
	if resp.Status != 201 {
		t.Fatalf("expected 201 for insert, got %d", resp.Status)
	}
	if len(resp.Headers) != 1 || resp.Headers[0].Value != "*/3" {
		t.Fatalf("got headers %+v", resp.Headers)
	}
}

func TestMinimalResponseDeleteStatus(t *testing.T) {
	req := &ir.ApiRequest{Query: ir.Query{Kind: ir.KindDelete}}
	resp := minimalResponse(req, fakeResult{rowsAffected: 1})
	if resp.Status != 204 {
		t.Fatalf("expected 204 for delete, got %d", resp.Status)
	}
}
