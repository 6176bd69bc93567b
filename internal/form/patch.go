package form

import "github.com/nimbl/backend/internal/models"

// MergeLayout applies the non-nil members of p to l. FrameID is kept unless
// the patch names one.
func MergeLayout(l models.FieldLayout, p models.FieldLayoutPatch) models.FieldLayout {
	if p.FrameID != nil {
		l.FrameID = *p.FrameID
	}
	if p.X != nil {
		l.X = *p.X
	}
	if p.Y != nil {
		l.Y = *p.Y
	}
	if p.W != nil {
		l.W = *p.W
	}
	if p.H != nil {
		l.H = *p.H
	}
	return l
}

// MergeProps shallow-merges the non-nil members of p into a copy of props.
func MergeProps(props models.FieldProps, p models.FieldPropsPatch) models.FieldProps {
	out := props.Clone()
	if p.Label != nil {
		out.Label = *p.Label
	}
	if p.Placeholder != nil {
		out.Placeholder = *p.Placeholder
	}
	if p.Required != nil {
		out.Required = *p.Required
	}
	if p.Options != nil {
		out.Options = append([]string(nil), (*p.Options)...)
	}
	if p.HelpText != nil {
		out.HelpText = *p.HelpText
	}
	if p.DefaultValue != nil {
		out.DefaultValue = p.DefaultValue
	}
	if p.MinLength != nil {
		v := *p.MinLength
		out.MinLength = &v
	}
	if p.MaxLength != nil {
		v := *p.MaxLength
		out.MaxLength = &v
	}
	if p.Min != nil {
		v := *p.Min
		out.Min = &v
	}
	if p.Max != nil {
		v := *p.Max
		out.Max = &v
	}
	if p.Pattern != nil {
		out.Pattern = *p.Pattern
	}
	return out
}
