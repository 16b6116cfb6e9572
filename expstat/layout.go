// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import "fmt"

type Cell struct {
	X, Y int
}

// ProbePair is a perfect match probe and its mismatch partner.
type ProbePair struct {
	PM, MM Cell
}

type ProbeSetType int

const (
	ExpressionProbeSet ProbeSetType = iota
	GenotypingProbeSet
	ResequencingProbeSet
	TagProbeSet
	UnknownProbeSet
)

var probeSetTypeName = map[ProbeSetType]string{
	ExpressionProbeSet:   "expression",
	GenotypingProbeSet:   "genotyping",
	ResequencingProbeSet: "resequencing",
	TagProbeSet:          "tag",
	UnknownProbeSet:      "unknown",
}

func (t ProbeSetType) String() string {
	if s, ok := probeSetTypeName[t]; ok {
		return s
	}
	return fmt.Sprintf("ProbeSetType(%d)", int(t))
}

// ParseProbeSetType is the inverse of ProbeSetType.String.
func ParseProbeSetType(s string) (ProbeSetType, error) {
	for t, name := range probeSetTypeName {
		if name == s {
			return t, nil
		}
	}
	return UnknownProbeSet, fmt.Errorf("unknown probe set type %q", s)
}

type Direction int

const (
	NoDirection Direction = iota
	Sense
	AntiSense
)

func (d Direction) String() string {
	switch d {
	case Sense:
		return "sense"
	case AntiSense:
		return "antisense"
	default:
		return "none"
	}
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "sense":
		return Sense, nil
	case "antisense":
		return AntiSense, nil
	case "none", "":
		return NoDirection, nil
	}
	return NoDirection, fmt.Errorf("unknown direction %q", s)
}

type ProbeSet struct {
	Name      string
	Type      ProbeSetType
	Direction Direction
	Pairs     []ProbePair
}

// QCType identifies a group of quality control cells on the array.
type QCType int

const (
	CheckerboardPositive QCType = iota
	CheckerboardNegative
	CentralCrossPositive
	CentralCrossNegative
	numQCTypes
)

// CornerControlTypes lists the QC groups summarized as corner and
// central controls, in reporting order.
var CornerControlTypes = []QCType{
	CheckerboardPositive,
	CheckerboardNegative,
	CentralCrossPositive,
	CentralCrossNegative,
}

var qcTypeName = [...]string{
	CheckerboardPositive: "Corner+",
	CheckerboardNegative: "Corner-",
	CentralCrossPositive: "Central+",
	CentralCrossNegative: "Central-",
}

func (t QCType) String() string {
	if t >= 0 && t < numQCTypes {
		return qcTypeName[t]
	}
	return fmt.Sprintf("QCType(%d)", int(t))
}

func ParseQCType(s string) (QCType, error) {
	for t, name := range qcTypeName {
		if name == s {
			return QCType(t), nil
		}
	}
	return 0, fmt.Errorf("unknown qc type %q", s)
}

// Geometry describes the probe layout of an array type.
type Geometry interface {
	Rows() int
	Cols() int
	NumProbeSets() int
	ProbeSet(i int) *ProbeSet
	QCCells(QCType) []Cell
}

// Layout is an in-memory Geometry.
type Layout struct {
	Height    int
	Width     int
	ProbeSets []ProbeSet
	QC        map[QCType][]Cell
}

func (l *Layout) Rows() int                { return l.Height }
func (l *Layout) Cols() int                { return l.Width }
func (l *Layout) NumProbeSets() int        { return len(l.ProbeSets) }
func (l *Layout) ProbeSet(i int) *ProbeSet { return &l.ProbeSets[i] }
func (l *Layout) QCCells(t QCType) []Cell  { return l.QC[t] }

// Index returns a map from probe set name to index.
func Index(g Geometry) map[string]int {
	idx := make(map[string]int, g.NumProbeSets())
	for i := 0; i < g.NumProbeSets(); i++ {
		idx[g.ProbeSet(i).Name] = i
	}
	return idx
}

// checkGeometry returns an error if g contains anything other than
// expression probe sets or refers to cells outside the array.
func checkGeometry(g Geometry) error {
	rows, cols := g.Rows(), g.Cols()
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("%w: %d rows, %d cols", ErrGeometry, rows, cols)
	}
	inside := func(c Cell) bool {
		return c.X >= 0 && c.Y >= 0 && c.X < cols && c.Y < rows
	}
	for i := 0; i < g.NumProbeSets(); i++ {
		ps := g.ProbeSet(i)
		if ps.Type != ExpressionProbeSet {
			return ErrNonExpression
		}
		for _, pair := range ps.Pairs {
			if !inside(pair.PM) || !inside(pair.MM) {
				return fmt.Errorf("%w: probe set %q has a probe outside %dx%d", ErrGeometry, ps.Name, cols, rows)
			}
		}
	}
	for _, t := range CornerControlTypes {
		for _, c := range g.QCCells(t) {
			if !inside(c) {
				return fmt.Errorf("%w: %s cell (%d,%d) outside %dx%d", ErrGeometry, t, c.X, c.Y, cols, rows)
			}
		}
	}
	return nil
}
