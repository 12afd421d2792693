// File: rma/protocol.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire format between origin and target. Every operation is a fixed-size
// header followed, when Length > 0, by a payload message of Length bytes.
// A header of kind msgDone ends the origin's access epoch at that target.

package rma

import (
	"encoding/binary"

	"github.com/momentics/hioload-coll/api"
)

const headerLen = 24

type msgKind uint8

const (
	msgPut msgKind = iota + 1
	msgAccumulate
	msgDone
)

type header struct {
	kind   msgKind
	op     api.ReduceOp
	elem   api.Kind
	offset uint64
	length uint64
}

func (h header) encode(b []byte) {
	b[0] = byte(h.kind)
	b[1] = byte(h.op)
	b[2] = byte(h.elem)
	b[3] = 0
	binary.LittleEndian.PutUint32(b[4:8], 0)
	binary.LittleEndian.PutUint64(b[8:16], h.offset)
	binary.LittleEndian.PutUint64(b[16:24], h.length)
}

func decodeHeader(b []byte) (header, error) {
	h := header{
		kind:   msgKind(b[0]),
		op:     api.ReduceOp(b[1]),
		elem:   api.Kind(b[2]),
		offset: binary.LittleEndian.Uint64(b[8:16]),
		length: binary.LittleEndian.Uint64(b[16:24]),
	}
	if h.kind < msgPut || h.kind > msgDone {
		return h, api.Errorf(api.ErrCodeInternal, "unknown rma message kind %d", b[0])
	}
	return h, nil
}
