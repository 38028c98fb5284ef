// Package ints provides small growable integer containers reused as
// scratch by the phasing core.  The containers never shrink: Clear
// resets the length and keeps the capacity, so per-marker and
// per-target loops do not reallocate.
package ints

// List is a growable list of int32 values.  The zero value is an empty
// list ready for use.
type List struct {
	v []int32
}

// Append adds x to the end of the list.
func (l *List) Append(x int32) {
	l.v = append(l.v, x)
}

// Get returns the i-th element.
func (l *List) Get(i int) int32 {
	return l.v[i]
}

// Len returns the number of elements.
func (l *List) Len() int {
	return len(l.v)
}

// Clear resets the length to zero, retaining capacity.
func (l *List) Clear() {
	l.v = l.v[:0]
}

// Slice returns the current contents as a slice.  The slice aliases the
// list's storage and is invalidated by the next Append or Clear; callers
// must not modify it.
func (l *List) Slice() []int32 {
	return l.v
}

// CopyTo appends the current contents to dst and returns the extended
// slice.
func (l *List) CopyTo(dst []int32) []int32 {
	return append(dst, l.v...)
}

// Matrix is a dense row-major int32 matrix.
type Matrix struct {
	v     []int32
	nCols int
}

// NewMatrix returns an nRows x nCols matrix with all elements zero.
func NewMatrix(nRows, nCols int) *Matrix {
	return &Matrix{v: make([]int32, nRows*nCols), nCols: nCols}
}

// Row returns row r as a slice aliasing the matrix storage.
func (m *Matrix) Row(r int) []int32 {
	return m.v[r*m.nCols : (r+1)*m.nCols]
}

// Get returns element (r, c).
func (m *Matrix) Get(r, c int) int32 {
	return m.v[r*m.nCols+c]
}

// Set assigns element (r, c).
func (m *Matrix) Set(r, c int, x int32) {
	m.v[r*m.nCols+c] = x
}

// NRows returns the number of rows.
func (m *Matrix) NRows() int {
	if m.nCols == 0 {
		return 0
	}
	return len(m.v) / m.nCols
}

// NCols returns the number of columns.
func (m *Matrix) NCols() int {
	return m.nCols
}
