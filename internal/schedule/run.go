// File: internal/schedule/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package schedule

import (
	"context"
	"time"

	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/internal/concurrency"
)

// RunBlocking drives s to completion on the calling goroutine, polling t and
// backing off while no step completes. If ctx ends first the schedule is
// stopped, withdrawing its posted operations, and ctx.Err() is returned
// wrapped as a cancellation.
func RunBlocking(ctx context.Context, s *Schedule, t api.Transport) error {
	if done, err := s.Advance(t); done {
		return err
	}
	bo := concurrency.NewBackoff(time.Microsecond, time.Millisecond)
	defer bo.Stop()
	last := s.Completed()
	for {
		done, err := s.Advance(t)
		if done {
			return err
		}
		if s.Completed() != last {
			last = s.Completed()
			bo.Reset()
			continue
		}
		if werr := bo.Wait(ctx, nil); werr != nil {
			s.Stop(t, api.WrapError(api.ErrCodeCanceled, werr, "blocking collective interrupted"))
			return s.Err()
		}
	}
}
