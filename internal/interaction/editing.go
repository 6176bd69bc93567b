package interaction

import (
	"strings"

	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/models"
)

// Select changes the selection. An unknown id clears it.
func (c *Controller) Select(fieldID string) {
	if _, ok := c.def.Fields[fieldID]; !ok {
		fieldID = ""
	}
	if c.selected == fieldID {
		return
	}
	c.selected = fieldID
	c.emit(ChangeSelection, fieldID)
}

// AddField places a new field and selects it.
func (c *Controller) AddField(nf form.NewField) (models.Field, error) {
	next, field, err := c.model.AddField(c.def, nf)
	if err != nil {
		return models.Field{}, err
	}
	c.apply(next, field.ID)
	c.Select(field.ID)
	return field, nil
}

// UpdateField merges a patch. Layout changes are clamped and rejected with
// form.ErrOverlap when they collide with a sibling.
func (c *Controller) UpdateField(fieldID string, p models.FieldPatch) error {
	next, err := form.PlaceField(c.def, fieldID, p)
	if err != nil {
		return err
	}
	c.apply(next, fieldID)
	return nil
}

// RemoveField deletes a field and clears the selection if it pointed there.
func (c *Controller) RemoveField(fieldID string) error {
	next, err := form.RemoveField(c.def, fieldID)
	if err != nil {
		return err
	}
	c.apply(next, fieldID)
	if c.selected == fieldID {
		c.Select("")
	}
	return nil
}

// DuplicateField copies a field and selects the copy.
func (c *Controller) DuplicateField(fieldID string) (models.Field, error) {
	next, dup, err := c.model.DuplicateField(c.def, fieldID)
	if err != nil {
		return models.Field{}, err
	}
	c.apply(next, dup.ID)
	c.Select(dup.ID)
	return dup, nil
}

// ToggleGrid flips the grid overlay flag.
func (c *Controller) ToggleGrid() {
	c.showGrid = !c.showGrid
	c.emit(ChangeSettings, "")
}

// apply records history and swaps in a new definition from a discrete edit.
func (c *Controller) apply(next models.FormDefinition, fieldID string) {
	c.record()
	c.def = next
	c.emit(ChangeLayout, fieldID)
}

// record pushes the current definition onto the undo stack and drops redo.
func (c *Controller) record() {
	c.undo = append(c.undo, c.def.Clone())
	if limit := c.opts.HistoryLimit; limit > 0 && len(c.undo) > limit {
		c.undo = c.undo[len(c.undo)-limit:]
	}
	c.redo = nil
}

// CanUndo reports whether Undo has anything to restore.
func (c *Controller) CanUndo() bool { return len(c.undo) > 0 }

// CanRedo reports whether Redo has anything to restore.
func (c *Controller) CanRedo() bool { return len(c.redo) > 0 }

// Undo restores the definition before the last edit or gesture.
func (c *Controller) Undo() bool {
	if len(c.undo) == 0 {
		return false
	}
	prev := c.undo[len(c.undo)-1]
	c.undo = c.undo[:len(c.undo)-1]
	c.redo = append(c.redo, c.def)
	c.restore(prev)
	return true
}

// Redo reapplies the last undone edit.
func (c *Controller) Redo() bool {
	if len(c.redo) == 0 {
		return false
	}
	next := c.redo[len(c.redo)-1]
	c.redo = c.redo[:len(c.redo)-1]
	c.undo = append(c.undo, c.def)
	c.restore(next)
	return true
}

func (c *Controller) restore(def models.FormDefinition) {
	c.g = gesture{mode: ModeIdle}
	c.def = def
	c.emit(ChangeLayout, "")
	if _, ok := c.def.Fields[c.selected]; !ok {
		c.Select("")
	}
}

// Key is a keyboard event. Mod is Ctrl or Cmd.
type Key struct {
	Key   string `json:"key"`
	Mod   bool   `json:"mod,omitempty"`
	Shift bool   `json:"shift,omitempty"`
}

// HandleKey runs the shortcut bound to k and reports whether one matched.
func (c *Controller) HandleKey(k Key) bool {
	key := strings.ToLower(k.Key)

	if !k.Mod {
		switch key {
		case "delete", "backspace":
			if c.selected == "" {
				return false
			}
			return c.RemoveField(c.selected) == nil
		case "escape":
			c.Select("")
			return true
		}
		return false
	}

	switch key {
	case "0":
		c.ResetView()
		return true
	case "+", "=":
		return c.ZoomBy(1)
	case "-", "_":
		return c.ZoomBy(-1)
	case "d":
		if c.selected == "" {
			return false
		}
		_, err := c.DuplicateField(c.selected)
		return err == nil
	case "g":
		c.ToggleGrid()
		return true
	case "z":
		if k.Shift {
			return c.Redo()
		}
		return c.Undo()
	case "y":
		return c.Redo()
	}
	return false
}
