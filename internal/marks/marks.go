// Package marks implements C6, Marks: a sorted set of marked line numbers,
// optionally carrying an identifying character, per spec.md §4.6.
package marks

import "sort"

type markEntry struct {
	line uint64
	char rune // 0 if unset
}

// Marks is a sorted-by-line-number set of marked lines. Not safe for
// concurrent use; FilteredLogData guards it with its own lock, per the
// locking order in spec.md §5.
type Marks struct {
	entries []markEntry
}

// New returns an empty Marks set.
func New() *Marks {
	return &Marks{}
}

func (m *Marks) search(line uint64) int {
	return sort.Search(len(m.entries), func(i int) bool { return m.entries[i].line >= line })
}

// Add marks line, optionally with an identifying character. At most one
// mark per line: calling Add again on an already-marked line replaces its
// character.
func (m *Marks) Add(line uint64, char rune) {
	i := m.search(line)
	if i < len(m.entries) && m.entries[i].line == line {
		m.entries[i].char = char
		return
	}
	m.entries = append(m.entries, markEntry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = markEntry{line: line, char: char}
}

// Remove unmarks line, if marked.
func (m *Marks) Remove(line uint64) {
	i := m.search(line)
	if i < len(m.entries) && m.entries[i].line == line {
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
	}
}

// RemoveByChar removes the first mark, in line order, carrying the given
// character; other marks with the same character are kept.
func (m *Marks) RemoveByChar(char rune) {
	for i, e := range m.entries {
		if e.char == char {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}

// Contains reports whether line is marked.
func (m *Marks) Contains(line uint64) bool {
	i := m.search(line)
	return i < len(m.entries) && m.entries[i].line == line
}

// Size returns the number of marks.
func (m *Marks) Size() int {
	return len(m.entries)
}

// GetMarkedLineByIndex returns the i-th marked line, in ascending order.
func (m *Marks) GetMarkedLineByIndex(i int) uint64 {
	return m.entries[i].line
}

// FirstAfter returns the smallest marked line strictly greater than line,
// and whether one exists.
func (m *Marks) FirstAfter(line uint64) (uint64, bool) {
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].line > line })
	if i >= len(m.entries) {
		return 0, false
	}
	return m.entries[i].line, true
}

// LastBefore returns the largest marked line strictly less than line, and
// whether one exists.
func (m *Marks) LastBefore(line uint64) (uint64, bool) {
	i := m.search(line) - 1
	if i < 0 {
		return 0, false
	}
	return m.entries[i].line, true
}

// Clear removes all marks.
func (m *Marks) Clear() {
	m.entries = m.entries[:0]
}

// Lines returns all marked lines in ascending order.
func (m *Marks) Lines() []uint64 {
	out := make([]uint64, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.line
	}
	return out
}
