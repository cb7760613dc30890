package stack

type opKind uint8

const (
	opPush opKind = iota + 1
	opPop
)

type op struct {
	kind  opKind
	value any
}

// stage overlays a transaction's pending pushes and pops on the shared
// stack. Positions below the ones it popped are read from the store.
type stage struct {
	store  *Store
	ops    []op
	pushed []any
	popped int
}

func newStage(store *Store) *stage {
	return &stage{store: store}
}

func (s *stage) push(v any) {
	s.ops = append(s.ops, op{kind: opPush, value: v})
	s.pushed = append(s.pushed, v)
}

func (s *stage) pop() (any, bool) {
	if n := len(s.pushed); n > 0 {
		v := s.pushed[n-1]
		s.pushed[n-1] = nil
		s.pushed = s.pushed[:n-1]
		s.ops = append(s.ops, op{kind: opPop})
		return v, true
	}
	v, ok := s.store.at(s.popped)
	if !ok {
		return nil, false
	}
	s.popped++
	s.ops = append(s.ops, op{kind: opPop})
	return v, true
}

func (s *stage) peek() (any, bool) {
	if n := len(s.pushed); n > 0 {
		return s.pushed[n-1], true
	}
	return s.store.at(s.popped)
}

func (s *stage) len() int {
	n := s.store.Len() - s.popped
	if n < 0 {
		n = 0
	}
	return n + len(s.pushed)
}

// Apply implements pool.Stage.
func (s *stage) Apply() {
	s.store.apply(s.ops)
	s.Discard()
}

// Discard implements pool.Stage.
func (s *stage) Discard() {
	s.ops = nil
	s.pushed = nil
	s.popped = 0
}
