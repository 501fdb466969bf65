package shifts

// Reconcile classifies a freshly fetched batch against the previous
// cycle's result. It is a pure function: no I/O, no hidden state, same
// inputs always produce the same output.
//
// A shift counts as previously seen once it has appeared in either
// bucket of the prior result. Seen shifts still present in the latest
// invited list survive as Old; seen shifts the portal no longer offers
// are forgotten. Whatever remains of the invited list is New.
//
// Duplicate keys within a single fetch keep their multiplicity in the
// output lists; only the membership tests collapse them.
func Reconcile(invited, scheduled []Shift, prev Result) Result {
	previouslySeen := make([]Shift, 0, len(prev.Old)+len(prev.New))
	previouslySeen = append(previouslySeen, prev.Old...)
	previouslySeen = append(previouslySeen, prev.New...)

	currentKeys := make(map[string]struct{}, len(invited))
	for _, s := range invited {
		currentKeys[s.Key()] = struct{}{}
	}

	old := make([]Shift, 0, len(previouslySeen))
	oldKeys := make(map[string]struct{}, len(previouslySeen))
	for _, s := range previouslySeen {
		if _, ok := currentKeys[s.Key()]; ok {
			old = append(old, s)
			oldKeys[s.Key()] = struct{}{}
		}
	}

	fresh := make([]Shift, 0, len(invited))
	for _, s := range invited {
		if _, ok := oldKeys[s.Key()]; !ok {
			fresh = append(fresh, s)
		}
	}

	sched := make([]Shift, 0, len(scheduled))
	sched = append(sched, scheduled...)

	return Result{
		Old:            old,
		New:            fresh,
		Scheduled:      sched,
		OldCount:       len(old),
		NewCount:       len(fresh),
		ScheduledCount: len(sched),
	}
}
