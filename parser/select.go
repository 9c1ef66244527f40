package parser

import (
	"strings"

	"github.com/atomicbase/restsql/apierr"
	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/ir"
)

// rawSelectItem is the output of the select-list tokenizer, before
// columns are validated against the schema or relations are resolved.
// Grounded on daos/build_query.go's parseSelect: a stack of "current
// relation" frames built by '(' / ')' with backslash-escape and
// double-quote handling, generalized to also capture a cast suffix and a
// function-call form ($fn(args)).
type rawSelectItem struct {
	alias    string
	name     string // column name, function name, or embedded relation name
	hint     string // "!fk" disambiguation hint on an embed
	cast     string
	isEmbed  bool
	isStar   bool
	isFunc   bool
	children []rawSelectItem // populated when isEmbed or isFunc
}

// selectCursor walks a select-list string rune by rune, the way
// parseSelect walks param in daos/build_query.go, except it returns a
// tree value instead of mutating a shared Relation graph.
type selectCursor struct {
	runes []rune
	pos   int
}

// parseSelectList tokenizes a `select=` value into a tree of
// rawSelectItem under an implicit root.
func parseSelectList(param string) ([]rawSelectItem, *apierr.Error) {
	if param == "" {
		return []rawSelectItem{{isStar: true}}, nil
	}
	c := &selectCursor{runes: []rune(param)}
	items, err := c.parseItems()
	if err != nil {
		return nil, err
	}
	if c.pos != len(c.runes) {
		return nil, apierr.ParseErr("unexpected %q at position %d in select list", string(c.runes[c.pos]), c.pos)
	}
	return items, nil
}

// parseItems consumes a comma-separated list of items up to (but not
// consuming) an unmatched ')' or end of input.
func (c *selectCursor) parseItems() ([]rawSelectItem, *apierr.Error) {
	var items []rawSelectItem
	for {
		item, err := c.parseItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if c.pos < len(c.runes) && c.runes[c.pos] == ',' {
			c.pos++
			continue
		}
		return items, nil
	}
}

// parseItem consumes one `(alias:)?name(!hint)?(args)?(::cast)?` item.
func (c *selectCursor) parseItem() (rawSelectItem, *apierr.Error) {
	var item rawSelectItem

	first := c.readToken()
	if !c.peekString("::") && c.peek() == ':' {
		c.pos++
		item.alias = first
		first = c.readToken()
	}
	item.name = first

	if c.peek() == '!' {
		c.pos++
		item.hint = c.readToken()
	}

	if c.peek() == '(' {
		c.pos++
		children, err := c.parseItems()
		if err != nil {
			return rawSelectItem{}, err
		}
		if c.peek() != ')' {
			return rawSelectItem{}, apierr.ParseErr("unterminated ( in select list")
		}
		c.pos++
		item.children = children
		if strings.HasPrefix(item.name, "$") {
			item.isFunc = true
			item.name = strings.TrimPrefix(item.name, "$")
		} else {
			item.isEmbed = true
		}
	}

	if c.peekString("::") {
		c.pos += 2
		item.cast = c.readToken()
	}

	if item.name == "*" && !item.isEmbed && !item.isFunc {
		item.isStar = true
	}

	return item, nil
}

// readToken consumes a bare identifier: everything up to the next
// structural rune (`,`, `:`, `!`, `(`, `)`), honoring backslash-escapes
// and double-quoted spans so special characters can appear literally.
func (c *selectCursor) readToken() string {
	var b strings.Builder
	quoted := false
	escaped := false
	for c.pos < len(c.runes) {
		r := c.runes[c.pos]
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
			c.pos++
			continue
		case r == '\\':
			escaped = true
			c.pos++
			continue
		case r == '"':
			quoted = !quoted
			c.pos++
			continue
		case quoted:
			b.WriteRune(r)
			c.pos++
			continue
		}
		if r == ',' || r == ':' || r == '!' || r == '(' || r == ')' {
			// "::" cast marker is two colons; a single ':' still ends the
			// token so alias-vs-cast disambiguation happens in parseItem.
			return b.String()
		}
		b.WriteRune(r)
		c.pos++
	}
	return b.String()
}

func (c *selectCursor) peek() rune {
	if c.pos >= len(c.runes) {
		return 0
	}
	return c.runes[c.pos]
}

func (c *selectCursor) peekString(s string) bool {
	rs := []rune(s)
	if c.pos+len(rs) > len(c.runes) {
		return false
	}
	for i, r := range rs {
		if c.runes[c.pos+i] != r {
			return false
		}
	}
	return true
}

// resolveSelect turns a tree of rawSelectItem into ir.SelectItem /
// ir.SubSelect values against a specific catalog.Object, validating
// column and relation existence and resolving embed hints via
// catalog.DbSchema.ResolveRelation.
func resolveSelect(schema *catalog.DbSchema, obj *catalog.Object, items []rawSelectItem, allowed map[string]bool) ([]ir.SelectItem, []ir.SubSelect, *apierr.Error) {
	var selItems []ir.SelectItem
	var subs []ir.SubSelect

	for _, it := range items {
		switch {
		case it.isStar:
			selItems = append(selItems, ir.SelectItem{Kind: ir.SelectItemStar})

		case it.isFunc:
			if !allowed[it.name] {
				return nil, nil, apierr.ParseErr("function %q is not in the allowed select function list", it.name)
			}
			args := make([]ir.Field, 0, len(it.children))
			for _, c := range it.children {
				f, aerr := parseField(c.name)
				if aerr != nil {
					return nil, nil, aerr
				}
				args = append(args, f)
			}
			selItems = append(selItems, ir.SelectItem{
				Kind:     ir.SelectItemFunc,
				FuncName: it.name,
				Args:     args,
				Alias:    it.alias,
				Cast:     it.cast,
			})

		case it.isEmbed:
			target, ok := schema.Object("", it.name)
			if !ok {
				return nil, nil, apierr.UnknownTableErr(it.name)
			}
			rel, rerr := schema.ResolveRelation(obj.Name, target.Name, it.hint)
			if rerr != nil {
				return nil, nil, rerr
			}
			childItems, childSubs, aerr := resolveSelect(schema, target, it.children, allowed)
			if aerr != nil {
				return nil, nil, aerr
			}
			if len(childItems) == 0 {
				childItems = []ir.SelectItem{{Kind: ir.SelectItemStar}}
			}
			alias := it.alias
			if alias == "" {
				alias = it.name
			}
			subs = append(subs, ir.SubSelect{
				Query: &ir.Query{
					Name:       alias,
					Kind:       ir.KindSelect,
					Select:     &ir.Select{From: target.Name, Select: childItems},
					SubSelects: childSubs,
				},
				Join: ir.JoinInfo{
					Cardinality:       cardinalityFromCatalog(rel.Cardinality),
					OriginCols:        rel.OriginCols,
					TargetCols:        rel.TargetCols,
					ToMany:            rel.ToMany,
					Through:           rel.Through,
					ThroughOriginCols: rel.ThroughOriginCols,
					ThroughTargetCols: rel.ThroughTargetCols,
				},
			})

		default:
			f, aerr := parseField(it.name)
			if aerr != nil {
				return nil, nil, aerr
			}
			if _, ok := obj.Column(f.Column); !ok {
				return nil, nil, apierr.UnknownColumnErr(obj.Name, f.Column)
			}
			selItems = append(selItems, ir.SelectItem{
				Kind:  ir.SelectItemSimple,
				Field: f,
				Alias: it.alias,
				Cast:  it.cast,
			})
		}
	}

	return selItems, subs, nil
}

func cardinalityFromCatalog(c catalog.Cardinality) ir.Cardinality {
	switch c {
	case catalog.CardinalityParent:
		return ir.CardinalityParent
	case catalog.CardinalityChild:
		return ir.CardinalityChild
	case catalog.CardinalityManyToMany:
		return ir.CardinalityManyToMany
	default:
		return ir.CardinalityCustom
	}
}
