// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import "fmt"

type DetectionCall int

const (
	Present DetectionCall = iota
	Marginal
	Absent
	NoCall
)

var detectionCallName = [...]string{"P", "M", "A", "No Call"}

func (d DetectionCall) String() string {
	if d >= Present && d <= NoCall {
		return detectionCallName[d]
	}
	return fmt.Sprintf("DetectionCall(%d)", int(d))
}

func ParseDetectionCall(s string) (DetectionCall, error) {
	for i, name := range detectionCallName {
		if s == name {
			return DetectionCall(i), nil
		}
	}
	return NoCall, fmt.Errorf("unknown detection call %q", s)
}

type ChangeCall int

const (
	UnknownChange ChangeCall = iota
	Increase
	Decrease
	ModerateIncrease
	ModerateDecrease
	NoChange
	NoCallChange
)

var changeCallName = [...]string{"?", "I", "D", "MI", "MD", "No Change", "No Call"}

func (c ChangeCall) String() string {
	if c >= UnknownChange && c <= NoCallChange {
		return changeCallName[c]
	}
	return fmt.Sprintf("ChangeCall(%d)", int(c))
}

func ParseChangeCall(s string) (ChangeCall, error) {
	for i, name := range changeCallName {
		if s == name {
			return ChangeCall(i), nil
		}
	}
	return UnknownChange, fmt.Errorf("unknown change call %q", s)
}

// AbsStat is the single-chip result for one probe set.
type AbsStat struct {
	DetectionPValue float32
	Signal          float32
	NumPairs        uint16
	NumUsedPairs    uint16
	Detection       DetectionCall
}

// CompStat is the experiment-vs-baseline result for one probe set.
type CompStat struct {
	ChangePValue       float32
	SignalLogRatio     float32
	SignalLogRatioLow  float32
	SignalLogRatioHigh float32
	NumCommonPairs     uint16
	Change             ChangeCall
}

type AvgStdvMinMax struct {
	Avg, Stdv, Min, Max float64
}

// ControlInfo summarizes one group of corner or central QC cells.
type ControlInfo struct {
	Type  QCType
	Avg   float64
	Count int
}

type Result struct {
	// Abs has one entry per probe set of the layout, in layout order.
	Abs []AbsStat
	// BaselineAbs and Comp are nil unless a baseline chip was given.
	BaselineAbs []AbsStat
	Comp        []CompStat

	Zones         ZoneSet
	BaselineZones ZoneSet

	ScaleFactor     float64
	BaseScaleFactor float64
	NormFactor      float64

	Background   AvgStdvMinMax
	Noise        AvgStdvMinMax
	RawQ         float64
	BaselineRawQ float64
	Controls     []ControlInfo

	// Adjusted is the row-major background-adjusted intensity of every
	// cell of the experiment chip, if requested.
	Adjusted []float32

	// Params are the parameters in effect, with computed factors
	// filled in.
	Params Params
}

// HasBaseline reports whether comparison results are present.
func (r *Result) HasBaseline() bool {
	return r.Comp != nil
}
