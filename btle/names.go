package btle

// NameTable maps identifiers to assigned common names.
// It is built once and treated as read-only afterwards; share it by reference.
type NameTable struct {
	names map[UUID]string
}

// NewNameTable builds a table from UUID/name pairs. Later entries win.
func NewNameTable(entries map[UUID]string) *NameTable {
	t := &NameTable{names: make(map[UUID]string, len(entries))}
	for u, n := range entries {
		t.names[u] = n
	}
	return t
}

// Lookup returns the common name for u, or "" when unknown or t is nil
func (t *NameTable) Lookup(u UUID) string {
	if t == nil {
		return ""
	}
	return t.names[u]
}

// Len returns the number of known identifiers
func (t *NameTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}
