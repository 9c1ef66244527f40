package parser

import (
	"strconv"
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/ir"
)

// parsePreferences parses the Prefer header's comma-separated
// `key=value` directives into ir.Preferences. Recoverable omissions fall
// back to the defaults of §4.3 (minimal return, no resolution directive,
// no count, tx=commit) rather than erroring.
func parsePreferences(header string) ir.Preferences {
	p := ir.Preferences{
		Return: ir.ReturnMinimal,
		Count:  ir.CountNone,
		Tx:     ir.TxCommit,
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		switch key {
		case "return":
			switch val {
			case "minimal":
				p.Return = ir.ReturnMinimal
			case "representation":
				p.Return = ir.ReturnRepresentation
			case "headers-only":
				p.Return = ir.ReturnHeadersOnly
			}
		case "resolution":
			switch val {
			case "merge-duplicates":
				p.Resolution = ir.ResolutionMergeDuplicates
			case "ignore-duplicates":
				p.Resolution = ir.ResolutionIgnoreDuplicates
			}
		case "count":
			switch val {
			case "exact":
				p.Count = ir.CountExact
			case "planned":
				p.Count = ir.CountPlanned
			case "estimated":
				p.Count = ir.CountEstimated
			}
		case "tx":
			switch val {
			case "rollback":
				p.Tx = ir.TxRollback
			case "commit":
				p.Tx = ir.TxCommit
			}
		}
	}
	return p
}

// parseAccept negotiates the response content type from an Accept header
// value. An empty header, or one listing */*, selects ApplicationJSON; a
// header listing none of the supported media types is a parse error.
func parseAccept(header string) (ir.AcceptKind, *apierr.Error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*/*" {
		return ir.AcceptJSON, nil
	}
	for _, mt := range strings.Split(header, ",") {
		mt = strings.TrimSpace(strings.SplitN(mt, ";", 2)[0])
		switch mt {
		case "application/json", "*/*":
			return ir.AcceptJSON, nil
		case "application/vnd.pgrst.object+json":
			return ir.AcceptSingularJSON, nil
		case "text/csv":
			return ir.AcceptCSV, nil
		}
	}
	return 0, apierr.ParseErr("unsupported Accept header %q", header)
}

// parseRange parses a `Range: <unit>=<offset>-<end>` header into a limit
// bounding the already-parsed offset/limit pair, per §4.3's "Range header
// honored as offset+limit".
func parseRange(header string, offset *int) (limit *int, aerr *apierr.Error) {
	if header == "" {
		return nil, nil
	}
	idx := strings.IndexByte(header, '=')
	if idx < 0 {
		return nil, apierr.ParseErr("malformed Range header %q", header)
	}
	bounds := strings.SplitN(header[idx+1:], "-", 2)
	if len(bounds) != 2 {
		return nil, apierr.ParseErr("malformed Range header %q", header)
	}
	start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
	if err != nil {
		return nil, apierr.ParseErr("malformed Range start %q", bounds[0])
	}
	if offset != nil {
		*offset = start
	}
	if strings.TrimSpace(bounds[1]) == "" {
		return nil, nil
	}
	end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
	if err != nil {
		return nil, apierr.ParseErr("malformed Range end %q", bounds[1])
	}
	n := end - start + 1
	if n < 0 {
		n = 0
	}
	return &n, nil
}
