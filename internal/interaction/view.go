package interaction

import (
	"github.com/nimbl/backend/internal/camera"
	"github.com/nimbl/backend/internal/form"
)

// View is a render-ready snapshot of the controller.
type View struct {
	Camera   camera.Camera   `json:"camera"`
	Viewport camera.Viewport `json:"viewport"`
	Mode     Mode            `json:"mode"`
	Selected string          `json:"selected,omitempty"`
	ShowGrid bool            `json:"showGrid"`
	Snapping bool            `json:"snapping"`
	CanUndo  bool            `json:"canUndo"`
	CanRedo  bool            `json:"canRedo"`
	Layout   form.Rendered   `json:"layout"`
}

// View returns the current snapshot.
func (c *Controller) View() View {
	return View{
		Camera:   c.cam,
		Viewport: c.vp,
		Mode:     c.g.mode,
		Selected: c.selected,
		ShowGrid: c.showGrid,
		Snapping: c.snap,
		CanUndo:  c.CanUndo(),
		CanRedo:  c.CanRedo(),
		Layout:   form.Render(c.def),
	}
}
