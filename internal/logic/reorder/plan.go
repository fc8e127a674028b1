package reorder

// Drop describes a release: the dragged item and the row it was dropped on.
// Over is the hovered row's index in its list; Empty marks a drop of an
// actuator on the row of a group with no members. Item and Dest are
// copied into the instruction.
type Drop struct {
	Kind      Kind
	FromGroup int
	From      int
	ToGroup   int
	Over      int
	Upper     bool
	Empty     bool
	Item      string
	Dest      string
}

// Plan computes the remove+insert for a drop. ok is false when the drop
// would leave the order unchanged.
//
// The insertion point is before the hovered row for its upper half and
// after it otherwise. Within one list, dropping right before or right after
// the dragged item is a no-op, and a later insertion point shifts down by
// one once the item has been removed.
func Plan(d Drop) (Instruction, bool) {
	insert := d.Over
	if !d.Upper {
		insert++
	}
	if d.Empty {
		insert = 0
	}

	sameList := d.Kind == KindGroup || d.FromGroup == d.ToGroup
	if sameList {
		if insert == d.From || insert == d.From+1 {
			return Instruction{}, false
		}
		if insert > d.From {
			insert--
		}
	}

	if d.Kind == KindGroup {
		return Instruction{Kind: KindGroup, FromGroup: d.From, From: d.From, ToGroup: insert, To: insert, Item: d.Item}, true
	}
	return Instruction{Kind: KindActuator, FromGroup: d.FromGroup, From: d.From, ToGroup: d.ToGroup, To: insert, Item: d.Item, Dest: d.Dest}, true
}
