package parser

import (
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/ir"
)

// parseOrder parses an `order=` value into ordered ir.OrderItem values,
// validating each referenced column against obj. Grounded on
// daos/query_helpers.go's BuildOrder, generalized to accept a JSON path
// field and emit structured nullsfirst/nullslast rather than inline SQL.
func parseOrder(obj *catalog.Object, raw string) ([]ir.OrderItem, *apierr.Error) {
	if raw == "" {
		return nil, nil
	}
	parts := splitTopLevel(raw, ',')
	items := make([]ir.OrderItem, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		segs := strings.Split(p, ".")
		f, ferr := parseField(segs[0])
		if ferr != nil {
			return nil, ferr
		}
		if _, ok := obj.Column(f.Column); !ok {
			return nil, apierr.UnknownColumnErr(obj.Name, f.Column)
		}

		item := ir.OrderItem{Field: f}
		for _, mod := range segs[1:] {
			switch strings.ToLower(mod) {
			case "asc":
				item.Descending = false
			case "desc":
				item.Descending = true
			case "nullsfirst":
				t := true
				item.NullsFirst = &t
			case "nullslast":
				f := false
				item.NullsFirst = &f
			default:
				return nil, apierr.ParseErr("unknown order modifier %q", mod)
			}
		}
		items = append(items, item)
	}
	return items, nil
}
