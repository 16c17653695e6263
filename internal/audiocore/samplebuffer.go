package audiocore

// SampleBuffer is a resizable byte buffer owned by one goroutine.
// Shrinking keeps the allocation; only growth allocates.
type SampleBuffer struct {
	data []byte
}

// SetData replaces the contents with a copy of src and reports whether the size changed.
func (b *SampleBuffer) SetData(src []byte) bool {
	resized := b.SetSize(len(src))
	copy(b.data, src)
	return resized
}

// SetSize sets the length to n bytes and reports whether it changed.
// Bytes beyond the previous length are unspecified after growth within capacity.
func (b *SampleBuffer) SetSize(n int) bool {
	if n == len(b.data) {
		return false
	}
	if n <= cap(b.data) {
		b.data = b.data[:n]
	} else {
		b.data = make([]byte, n)
	}
	return true
}

// Bytes returns the buffer contents. The slice is only valid until the next resize.
func (b *SampleBuffer) Bytes() []byte {
	return b.data
}

// Len returns the size in bytes.
func (b *SampleBuffer) Len() int {
	return len(b.data)
}
