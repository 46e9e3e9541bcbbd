package schedule

// TakenMap records acknowledged occurrences by their key string. A missing
// key means "not taken"; the map never stores false on purpose.
type TakenMap map[string]bool

// IsTaken is true only when the key is present and true.
func (t TakenMap) IsTaken(k OccurrenceKey) bool {
	return t[k.String()]
}

// MarkTaken returns a copy of t with k set. Marking twice yields an equal map.
// Keys the engine did not produce (stale or foreign) are carried over as-is.
func (t TakenMap) MarkTaken(k OccurrenceKey) TakenMap {
	out := t.clone()
	if out == nil {
		out = make(TakenMap, 1)
	}
	out[k.String()] = true
	return out
}

// Unmark returns a copy of t without k.
func (t TakenMap) Unmark(k OccurrenceKey) TakenMap {
	out := t.clone()
	delete(out, k.String())
	return out
}

// Acknowledged returns a copy of t holding only the true entries. Stale and
// foreign keys survive; explicit false values are dropped.
func (t TakenMap) Acknowledged() TakenMap {
	out := make(TakenMap, len(t))
	for k, v := range t {
		if v {
			out[k] = true
		}
	}
	return out
}

func (t TakenMap) clone() TakenMap {
	if t == nil {
		return nil
	}
	out := make(TakenMap, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
