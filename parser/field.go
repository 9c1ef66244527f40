package parser

import (
	"strconv"
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/ir"
)

// parseField parses a column reference with an optional JSON path chain,
// e.g. "data->attrs->>0->>name", into an ir.Field. "->" steps stay JSON,
// a trailing "->>" step marks the whole chain as rendered as text.
func parseField(raw string) (ir.Field, *apierr.Error) {
	if raw == "" {
		return ir.Field{}, apierr.ParseErr("empty field reference")
	}

	segs := splitJSONArrows(raw)
	f := ir.Field{Column: segs[0].key}
	for _, seg := range segs[1:] {
		step := ir.JSONPathStep{AsText: seg.asText}
		if n, err := strconv.Atoi(seg.key); err == nil {
			step.Index = &n
		} else {
			step.Key = seg.key
		}
		f.Path = append(f.Path, step)
	}
	return f, nil
}

type arrowSeg struct {
	key    string
	asText bool
}

// splitJSONArrows splits "a->b->>c" into [{a,false},{b,false},{c,true}],
// recognizing the two-character "->>" operator before the one-character
// "->" one.
func splitJSONArrows(s string) []arrowSeg {
	var segs []arrowSeg
	asText := false
	for {
		idx2 := strings.Index(s, "->>")
		idx1 := strings.Index(s, "->")
		switch {
		case idx2 >= 0 && idx2 == idx1:
			segs = append(segs, arrowSeg{key: s[:idx2], asText: asText})
			asText = true
			s = s[idx2+3:]
		case idx1 >= 0:
			segs = append(segs, arrowSeg{key: s[:idx1], asText: asText})
			asText = false
			s = s[idx1+2:]
		default:
			segs = append(segs, arrowSeg{key: s, asText: asText})
			return segs
		}
	}
}
