package maintenance

// DedupRegistry is the set of tables already acted upon during a run.
// It only grows: a marked table is never processed again by a later class.
type DedupRegistry struct {
	seen  map[string]struct{}
	order []string
}

func NewDedupRegistry() *DedupRegistry {
	return &DedupRegistry{seen: make(map[string]struct{})}
}

func (r *DedupRegistry) Seen(id string) bool {
	_, ok := r.seen[id]
	return ok
}

func (r *DedupRegistry) Mark(id string) {
	if r.Seen(id) {
		return
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
}

func (r *DedupRegistry) Len() int {
	return len(r.order)
}

// Identifiers returns the marked tables in the order they were marked.
func (r *DedupRegistry) Identifiers() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
