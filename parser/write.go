package parser

import (
	"encoding/json"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/ir"
)

// parseInsertBody decodes a POST body into one row per insert, accepting
// either a single JSON object or an array of objects, and validates every
// referenced column exists on obj.
func parseInsertBody(obj *catalog.Object, body string) ([]map[string]any, *apierr.Error) {
	if body == "" {
		return nil, apierr.ParseErr("insert requires a JSON object or array body")
	}

	var rows []map[string]any
	var single map[string]any
	if err := json.Unmarshal([]byte(body), &single); err == nil {
		rows = []map[string]any{single}
	} else {
		var arr []map[string]any
		if err := json.Unmarshal([]byte(body), &arr); err != nil {
			return nil, apierr.ParseErr("malformed JSON body: %v", err)
		}
		rows = arr
	}

	for _, row := range rows {
		for col := range row {
			if _, ok := obj.Column(col); !ok {
				return nil, apierr.UnknownColumnErr(obj.Name, col)
			}
		}
	}
	return rows, nil
}

// parseUpdateBody decodes a PATCH/PUT body into a single column-assignment
// map, validating every key against obj.
func parseUpdateBody(obj *catalog.Object, body string) (map[string]any, *apierr.Error) {
	if body == "" {
		return nil, apierr.ParseErr("update requires a JSON object body")
	}
	var row map[string]any
	if err := json.Unmarshal([]byte(body), &row); err != nil {
		return nil, apierr.ParseErr("malformed JSON body: %v", err)
	}
	for col := range row {
		if _, ok := obj.Column(col); !ok {
			return nil, apierr.UnknownColumnErr(obj.Name, col)
		}
	}
	return row, nil
}

// requirePkEqualityFilter enforces the PUT contract: the where clause
// must be a flat conjunction of `eq` conditions naming every primary key
// column and no other column (a column may be named more than once),
// decided at parse time per the open-question
// resolution recorded for this module (composite-PK partial filters on
// PUT are rejected before formatting, not left to the executor).
func requirePkEqualityFilter(obj *catalog.Object, where *ir.Condition) *apierr.Error {
	pk := obj.PrimaryKeyColumns()
	if len(pk) == 0 || where == nil {
		return apierr.PutMatchingPkErr()
	}

	matched := map[string]bool{}
	var collect func(c ir.Condition) bool
	collect = func(c ir.Condition) bool {
		switch c.Kind {
		case ir.ConditionSingle:
			if c.Negate || c.Filter.Kind != ir.FilterOp || c.Filter.Op != "=" {
				return false
			}
			matched[c.Field.Column] = true
			return true
		case ir.ConditionGroup:
			if c.Negate || c.LogicOp != ir.LogicAnd {
				return false
			}
			for _, sub := range c.Conditions {
				if !collect(sub) {
					return false
				}
			}
			return true
		default:
			return false
		}
	}
	if !collect(*where) {
		return apierr.PutMatchingPkErr()
	}

	for _, col := range pk {
		if !matched[col] {
			return apierr.PutMatchingPkErr()
		}
	}
	if len(matched) != len(pk) {
		return apierr.PutMatchingPkErr()
	}
	return nil
}
