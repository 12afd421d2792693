// File: internal/extent/pack.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package extent

import "github.com/momentics/hioload-coll/api"

// PackedLen is the wire size of count elements of t.
func PackedLen(count int, t api.Datatype) int {
	return count * int(t.Size())
}

// Pack copies the data lanes of count elements of t from src into the packed
// dst, dropping padding. len(dst) must be PackedLen(count, t).
func Pack(dst, src []byte, count int, t api.Datatype) {
	if t.IsContiguous() {
		copy(dst, src[:PackedLen(count, t)])
		return
	}
	w := t.Kind.Width()
	var o int64
	for i := 0; i < count; i++ {
		base := int64(i) * t.Extent
		for j := 0; j < t.Lanes; j++ {
			s := base + int64(j)*t.LaneStride
			copy(dst[o:o+w], src[s:s+w])
			o += w
		}
	}
}

// Unpack is the inverse of Pack; padding bytes in dst are left untouched.
func Unpack(dst, src []byte, count int, t api.Datatype) {
	if t.IsContiguous() {
		copy(dst[:PackedLen(count, t)], src)
		return
	}
	w := t.Kind.Width()
	var o int64
	for i := 0; i < count; i++ {
		base := int64(i) * t.Extent
		for j := 0; j < t.Lanes; j++ {
			d := base + int64(j)*t.LaneStride
			copy(dst[d:d+w], src[o:o+w])
			o += w
		}
	}
}

// Convert copies count elements laid out as st in src into dst laid out as
// dt with dcount elements. The packed sizes must match.
func Convert(dst []byte, dcount int, dt api.Datatype, src []byte, scount int, st api.Datatype) {
	if st.IsContiguous() {
		Unpack(dst, src[:PackedLen(scount, st)], dcount, dt)
		return
	}
	tmp := make([]byte, PackedLen(scount, st))
	Pack(tmp, src, scount, st)
	Unpack(dst, tmp, dcount, dt)
}
