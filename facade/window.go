// File: facade/window.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/rma"
)

// Window is a one-sided communication window.
type Window = rma.Window

// NewWindow exposes buf to the ranks of comm. Every rank must create its
// windows in the same order.
func (r *Runtime) NewWindow(comm *api.Comm, buf []byte) (*Window, error) {
	w, err := rma.New(comm, buf, r.log)
	if err != nil {
		return nil, err
	}
	r.count("rma.windows")
	return w, nil
}
