package link

import "github.com/obdeck/obdeck/internal/elm"

// action is what one scheduler cycle does on the wire.
type action int

const (
	actionPoll action = iota
	actionReadDTCs
	actionClearDTCs
)

// scheduler decides each cycle between the periodic PID rotation and a
// pending diagnostic intent. Diagnostic operations are rare and
// user-triggered, so they preempt routine polling for that cycle only;
// clear outranks refresh.
type scheduler struct {
	rotation []elm.Descriptor
	idx      int
}

func newScheduler(codes []string) *scheduler {
	s := &scheduler{}
	for _, c := range codes {
		if d, ok := elm.Descriptors[c]; ok {
			s.rotation = append(s.rotation, d)
		}
	}
	return s
}

func (s *scheduler) plan(refresh, clear bool) action {
	switch {
	case clear:
		return actionClearDTCs
	case refresh:
		return actionReadDTCs
	default:
		return actionPoll
	}
}

// next returns the descriptor for this cycle and advances the rotation.
func (s *scheduler) next() elm.Descriptor {
	d := s.rotation[s.idx]
	s.idx = (s.idx + 1) % len(s.rotation)
	return d
}
