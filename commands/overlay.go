package commands

import (
	"fmt"

	"github.com/mobile-next/siminspect/inspector"
)

// InspectToggleCommand enters or leaves inspect mode.
func InspectToggleCommand() *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if err := in.ToggleInspect(); err != nil {
			return nil, err
		}
		return in.Status().Overlay, nil
	})
}

func PointerMoveCommand(req PointRequest) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if err := in.PointerMoved(req.point()); err != nil {
			return nil, err
		}
		return in.Status().Overlay, nil
	})
}

func PointerClickCommand(req PointRequest) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if err := in.PointerClicked(req.point()); err != nil {
			return nil, err
		}
		return in.Status().Overlay, nil
	})
}

func SelectionClearCommand() *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if err := in.ClearSelection(); err != nil {
			return nil, err
		}
		return in.Status().Overlay, nil
	})
}

type SelectElementRequest struct {
	ID string `json:"id"`
}

// SelectElementCommand selects an element of the current tree by id.
func SelectElementCommand(req SelectElementRequest) *CommandResponse {
	return withInspector(func(in *inspector.Inspector) (interface{}, error) {
		if req.ID == "" {
			return nil, fmt.Errorf("element id is required")
		}
		if err := in.SelectElement(req.ID); err != nil {
			return nil, err
		}
		return in.Status().Overlay, nil
	})
}
