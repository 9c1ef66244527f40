package catalog

import (
	"sort"

	"github.com/atomicbase/restsql/apierr"
)

// Cardinality classifies a resolved Relation, mirroring the sub_select
// kinds of spec.md §3: `parent`, `child`, `many-to-many`, or `custom`.
type Cardinality string

const (
	CardinalityParent     Cardinality = "parent"
	CardinalityChild      Cardinality = "child"
	CardinalityManyToMany Cardinality = "many-to-many"
	CardinalityCustom     Cardinality = "custom"
)

// Relation is the resolved edge an embed traverses: which columns join
// origin to target, and (for many-to-many) the linking table in between.
type Relation struct {
	Name        string
	Cardinality Cardinality
	Origin      string
	OriginCols  []string
	Target      string
	TargetCols  []string

	// ToMany is meaningful only for CardinalityCustom: it tells the dialect
	// whether the embed is an array (true) or a single object (false). Every
	// other cardinality already implies its shape (parent is always to-one,
	// child and many-to-many are always to-many), so ToMany is left false
	// for them.
	ToMany bool

	// Through is set only for CardinalityManyToMany.
	Through           string
	ThroughOriginCols []string
	ThroughTargetCols []string
}

type edge struct {
	fk     ForeignKey
	object string // the object the fk is declared on (fk.OriginObject)
}

// relationIndex groups every foreign key (introspected or custom) by the
// unordered pair of objects it connects, so ResolveRelation finds direct
// edges without scanning the whole schema — this is "the indexed graph for
// embed disambiguation" spec.md §2 calls for. The many-to-many fallback
// (findLinkingTables) does not use this index.
type relationIndex struct {
	byPair map[[2]string][]edge      // sorted(objA,objB) -> edges between them
	byObj  map[string][]edge         // object -> every fk where it is the origin
}

func pairKey(a, b string) [2]string {
	if a <= b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

func buildRelationIndex(d *DbSchema) *relationIndex {
	idx := &relationIndex{
		byPair: map[[2]string][]edge{},
		byObj:  map[string][]edge{},
	}
	for _, s := range d.Schemas {
		for _, obj := range s.Objects {
			for _, fk := range obj.ForeignKeys {
				e := edge{fk: fk, object: obj.Name}
				key := pairKey(fk.OriginObject, fk.TargetObject)
				idx.byPair[key] = append(idx.byPair[key], e)
				idx.byObj[fk.OriginObject] = append(idx.byObj[fk.OriginObject], e)
			}
		}
	}
	return idx
}

// ResolveRelation implements spec.md §4.2: resolve exactly one relation
// between origin and target, optionally disambiguated by hint (either a
// foreign key/custom-relation name, or a column name participating in the
// edge).
func (d *DbSchema) ResolveRelation(origin, target, hint string) (Relation, *apierr.Error) {
	if d.relations == nil {
		return Relation{}, apierr.InternalErr(errNotBuilt)
	}

	direct := d.relations.byPair[pairKey(origin, target)]

	candidates := make([]Relation, 0, len(direct))
	for _, e := range direct {
		candidates = append(candidates, edgeToRelation(e, origin, target))
	}

	if len(candidates) > 1 && hint != "" {
		filtered := filterByHint(candidates, hint)
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		// fall through to many-to-many search
	default:
		return Relation{}, apierr.AmbiguousRelationErr(origin, target, toCandidateDescriptors(candidates))
	}

	// Many-to-many: find a linking object L != origin,target with an FK to
	// both. findLinkingTables scans the foreign keys of every object in
	// every schema directly.
	linking := findLinkingTables(d, origin, target)
	if hint != "" && len(linking) > 1 {
		linking = filterLinkingByHint(linking, hint)
	}

	switch len(linking) {
	case 1:
		return manyToManyRelation(linking[0], origin, target), nil
	case 0:
		return Relation{}, apierr.NoRelationErr(origin, target)
	default:
		cands := make([]apierr.RelationCandidate, 0, len(linking))
		for _, l := range linking {
			cands = append(cands, apierr.RelationCandidate{
				Name:        l.through,
				Origin:      origin,
				Target:      target,
				Cardinality: string(CardinalityManyToMany),
			})
		}
		return Relation{}, apierr.AmbiguousRelationErr(origin, target, cands)
	}
}

func edgeToRelation(e edge, origin, target string) Relation {
	fk := e.fk
	if fk.Custom {
		if fk.OriginObject == origin {
			return Relation{Name: fk.Name, Cardinality: CardinalityCustom, Origin: origin, OriginCols: fk.OriginColumns, Target: target, TargetCols: fk.TargetColumns, ToMany: fk.ToMany}
		}
		// Resolved in reverse: the caller's origin is the FK's declared
		// target, so the declared direction's to-many-ness no longer
		// applies as stated. A to-many declaration (one origin embeds many
		// targets) means, read backwards, that many origins share one
		// target — a to-one lookup from the target's side — and vice
		// versa, mirroring how CardinalityParent/CardinalityChild already
		// invert symmetrically based on which side holds the FK column.
		return Relation{Name: fk.Name, Cardinality: CardinalityCustom, Origin: origin, OriginCols: fk.TargetColumns, Target: target, TargetCols: fk.OriginColumns, ToMany: !fk.ToMany}
	}
	if fk.OriginObject == origin {
		// origin holds the FK column(s) pointing at target: "child" of target
		// in relational terms, but from the requester's point of view this
		// is a to-one parent lookup (origin.fk_col = target.pk).
		return Relation{Name: fk.Name, Cardinality: CardinalityParent, Origin: origin, OriginCols: fk.OriginColumns, Target: target, TargetCols: fk.TargetColumns}
	}
	// target holds the FK pointing back at origin: origin has many target rows.
	return Relation{Name: fk.Name, Cardinality: CardinalityChild, Origin: origin, OriginCols: fk.TargetColumns, Target: target, TargetCols: fk.OriginColumns}
}

func filterByHint(rels []Relation, hint string) []Relation {
	var out []Relation
	for _, r := range rels {
		if r.Name == hint {
			out = append(out, r)
			continue
		}
		if containsStr(r.OriginCols, hint) || containsStr(r.TargetCols, hint) {
			out = append(out, r)
		}
	}
	return out
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

type linkCandidate struct {
	through                       string
	throughToOrigin, throughToTarget ForeignKey
}

func findLinkingTables(d *DbSchema, origin, target string) []linkCandidate {
	var out []linkCandidate
	seen := map[string]bool{}
	for _, s := range d.Schemas {
		for _, obj := range s.Objects {
			if obj.Name == origin || obj.Name == target || seen[obj.Name] {
				continue
			}
			var toOrigin, toTarget *ForeignKey
			for i, fk := range obj.ForeignKeys {
				if fk.TargetObject == origin {
					toOrigin = &obj.ForeignKeys[i]
				}
				if fk.TargetObject == target {
					toTarget = &obj.ForeignKeys[i]
				}
			}
			if toOrigin != nil && toTarget != nil {
				seen[obj.Name] = true
				out = append(out, linkCandidate{through: obj.Name, throughToOrigin: *toOrigin, throughToTarget: *toTarget})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].through < out[j].through })
	return out
}

func filterLinkingByHint(cands []linkCandidate, hint string) []linkCandidate {
	var out []linkCandidate
	for _, c := range cands {
		if c.through == hint || c.throughToOrigin.Name == hint || c.throughToTarget.Name == hint {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return cands
	}
	return out
}

func manyToManyRelation(l linkCandidate, origin, target string) Relation {
	return Relation{
		Name:              l.through,
		Cardinality:       CardinalityManyToMany,
		Origin:            origin,
		OriginCols:        l.throughToOrigin.TargetColumns,
		Target:            target,
		TargetCols:        l.throughToTarget.TargetColumns,
		Through:           l.through,
		ThroughOriginCols: l.throughToOrigin.OriginColumns,
		ThroughTargetCols: l.throughToTarget.OriginColumns,
	}
}

func toCandidateDescriptors(rels []Relation) []apierr.RelationCandidate {
	out := make([]apierr.RelationCandidate, 0, len(rels))
	for _, r := range rels {
		out = append(out, apierr.RelationCandidate{
			Name:        r.Name,
			Origin:      r.Origin,
			Target:      r.Target,
			Cardinality: string(r.Cardinality),
		})
	}
	return out
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errNotBuilt = sentinelErr("catalog: DbSchema.Build was never called")
