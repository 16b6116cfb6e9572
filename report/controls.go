// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package report

import (
	"fmt"
	"io"
	"io/ioutil"

	"github.com/ghodss/yaml"
	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
)

// ControlPosition is the location of a control probe set along its
// transcript.
type ControlPosition int

const (
	ThreePrime ControlPosition = iota
	Middle
	FivePrime
	numPositions
)

func (p ControlPosition) String() string {
	switch p {
	case ThreePrime:
		return "3'"
	case Middle:
		return "M"
	case FivePrime:
		return "5'"
	}
	return fmt.Sprintf("ControlPosition(%d)", int(p))
}

// Control names the probe sets that make up one spike-in or
// housekeeping control. Empty names are absent.
type Control struct {
	Name       string `json:"name"`
	ThreePrime string `json:"three_prime,omitempty"`
	Middle     string `json:"middle,omitempty"`
	FivePrime  string `json:"five_prime,omitempty"`
}

func (c Control) probeSet(pos ControlPosition) string {
	switch pos {
	case ThreePrime:
		return c.ThreePrime
	case Middle:
		return c.Middle
	case FivePrime:
		return c.FivePrime
	}
	return ""
}

type Controls struct {
	ArrayType    string    `json:"array_type,omitempty"`
	Spike        []Control `json:"spike,omitempty"`
	Housekeeping []Control `json:"housekeeping,omitempty"`
}

// LoadControls reads control definitions in YAML or JSON.
func LoadControls(r io.Reader) (*Controls, error) {
	buf, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var cs Controls
	err = yaml.Unmarshal(buf, &cs)
	if err != nil {
		return nil, fmt.Errorf("controls: %w", err)
	}
	for _, list := range [][]Control{cs.Spike, cs.Housekeeping} {
		for _, c := range list {
			if c.Name == "" {
				return nil, fmt.Errorf("controls: control with no name")
			}
		}
	}
	return &cs, nil
}

// ControlResult holds the signal and detection call of each probe
// set of a control. Missing probe sets have signal -1 and NoCall.
type ControlResult struct {
	Name           string
	Signal         [numPositions]float64
	Detection      [numPositions]expstat.DetectionCall
	ThreeFiveRatio float64
	has            [numPositions]bool
}

func newControlResult(name string) ControlResult {
	r := ControlResult{Name: name, ThreeFiveRatio: -1}
	for i := range r.Signal {
		r.Signal[i] = -1
		r.Detection[i] = expstat.NoCall
	}
	return r
}

func (r *ControlResult) set(pos ControlPosition, signal float64, det expstat.DetectionCall) {
	r.Signal[pos] = signal
	r.Detection[pos] = det
	r.has[pos] = true
}

func (r *ControlResult) HasResult(pos ControlPosition) bool {
	return r.has[pos]
}

// AllSignal is the average signal of the probe sets present.
func (r *ControlResult) AllSignal() float64 {
	sum, n := 0.0, 0
	for pos, ok := range r.has {
		if ok {
			sum += r.Signal[pos]
			n++
		}
	}
	if n == 0 {
		return -1
	}
	return sum / float64(n)
}
