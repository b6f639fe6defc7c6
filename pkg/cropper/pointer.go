package cropper

import (
	"fmt"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// PointerKind is the kind of a canvas pointer message
type PointerKind int

const (
	PointerDown PointerKind = iota
	PointerMove
	PointerUp
	PointerLeave
)

func (k PointerKind) String() string {
	switch k {
	case PointerDown:
		return "down"
	case PointerMove:
		return "move"
	case PointerUp:
		return "up"
	case PointerLeave:
		return "leave"
	default:
		return fmt.Sprintf("pointer(%d)", int(k))
	}
}

// PointerEvent is a pointer message in canvas coordinates
type PointerEvent struct {
	Kind PointerKind `json:"kind"`
	X    float64     `json:"x"`
	Y    float64     `json:"y"`
}

// HandlePointer drives panning. Down starts a drag, Move while dragging sets the offset
// relative to the drag origin, Up and Leave end it. Move without a drag is a no-op.
func (s *Session) HandlePointer(ev PointerEvent) error {
	if err := s.editing(); err != nil {
		return err
	}

	if !finite(ev.X, ev.Y) {
		return fmt.Errorf("%w: pointer at (%v, %v)", types.ErrInvalidGeometry, ev.X, ev.Y)
	}

	at := Point{X: ev.X, Y: ev.Y}
	switch ev.Kind {
	case PointerDown:
		s.drag = DragState{Dragging: true, Start: at, Origin: s.crop.Offset}
	case PointerMove:
		if !s.drag.Dragging {
			return nil
		}
		s.crop.Offset = Point{
			X: s.drag.Origin.X + at.X - s.drag.Start.X,
			Y: s.drag.Origin.Y + at.Y - s.drag.Start.Y,
		}
	case PointerUp, PointerLeave:
		s.drag = DragState{}
	default:
		return fmt.Errorf("unknown pointer event %s", ev.Kind)
	}
	return nil
}
