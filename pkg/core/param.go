package core

import (
	"fmt"
	"strconv"
)

// ParamKind tags the value held by an OverlayParam.
type ParamKind uint8

const (
	ParamInt ParamKind = iota + 1
	ParamFloat
	ParamBool
	ParamText
)

func (k ParamKind) String() string {
	switch k {
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamBool:
		return "bool"
	case ParamText:
		return "text"
	default:
		return "invalid"
	}
}

// OverlayParam is one argument of an overlay call. The zero value is invalid;
// construct with Int, Float, Bool or Text.
type OverlayParam struct {
	kind ParamKind
	i    int
	f    float64
	b    bool
	s    string
}

func Int(v int) OverlayParam       { return OverlayParam{kind: ParamInt, i: v} }
func Float(v float64) OverlayParam { return OverlayParam{kind: ParamFloat, f: v} }
func Bool(v bool) OverlayParam     { return OverlayParam{kind: ParamBool, b: v} }
func Text(v string) OverlayParam   { return OverlayParam{kind: ParamText, s: v} }

// Kind returns the tag.
func (p OverlayParam) Kind() ParamKind { return p.kind }

// AsInt returns the int value and whether the param holds one.
func (p OverlayParam) AsInt() (int, bool) { return p.i, p.kind == ParamInt }

// AsFloat returns the float value and whether the param holds one.
func (p OverlayParam) AsFloat() (float64, bool) { return p.f, p.kind == ParamFloat }

// AsBool returns the bool value and whether the param holds one.
func (p OverlayParam) AsBool() (bool, bool) { return p.b, p.kind == ParamBool }

// AsText returns the string value and whether the param holds one.
func (p OverlayParam) AsText() (string, bool) { return p.s, p.kind == ParamText }

func (p OverlayParam) String() string {
	switch p.kind {
	case ParamInt:
		return strconv.Itoa(p.i)
	case ParamFloat:
		return strconv.FormatFloat(p.f, 'f', -1, 64)
	case ParamBool:
		return strconv.FormatBool(p.b)
	case ParamText:
		return strconv.Quote(p.s)
	default:
		return fmt.Sprintf("<%s>", p.kind)
	}
}
