package chainz

// contentKey identifies the slot for values of type T. Distinct type
// arguments give distinct map keys, so no type names are derived at runtime.
type contentKey[T any] struct{}

// Put stores v as the message's value of type T, replacing any previous one.
func Put[T any](m *Message, v T) {
	key := contentKey[T]{}
	if m.content == nil {
		m.content = make(map[any]any)
	}
	if _, ok := m.content[key]; !ok {
		m.order = append(m.order, key)
	}
	m.content[key] = v
}

// Get returns the message's value of type T. The boolean is false when no
// such value is stored; absence is not an error.
func Get[T any](m *Message) (T, bool) {
	v, ok := m.content[contentKey[T]{}]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// MustGet is like Get but panics when no value of type T is stored.
func MustGet[T any](m *Message) T {
	v, ok := Get[T](m)
	if !ok {
		panic("chainz: no content of type " + typeName[T]())
	}
	return v
}

// Has reports whether a value of type T is stored.
func Has[T any](m *Message) bool {
	_, ok := m.content[contentKey[T]{}]
	return ok
}

// Remove deletes the value of type T and reports whether one was stored.
func Remove[T any](m *Message) bool {
	key := contentKey[T]{}
	if _, ok := m.content[key]; !ok {
		return false
	}
	delete(m.content, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Contents returns every stored value, ordered by when its type was first
// stored.
func (m *Message) Contents() []any {
	out := make([]any, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.content[k])
	}
	return out
}

// Len returns the number of stored values.
func (m *Message) Len() int {
	return len(m.content)
}
