// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package expstat computes MAS5 detection calls, signals and
// comparison calls for 3' expression arrays.
package expstat

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"
)

// Engine runs the MAS5 analysis. The zero value is not usable; start
// from NewEngine or set Params explicitly.
type Engine struct {
	Params Params
	// Maximum number of goroutines per phase (default NumCPU).
	Workers int
	// Compute Result.Adjusted.
	WriteAdjusted bool
	Logger        logrus.FieldLogger
}

func NewEngine(params Params) *Engine {
	return &Engine{Params: params, Logger: logrus.StandardLogger()}
}

// chipAnalysis is the single-chip state needed after the absolute
// analysis.
type chipAnalysis struct {
	view  *chipView
	zones ZoneSet
	abs   []AbsStat
	pairs []*pairValues
}

// Run analyzes exp, and compares it to baseline if baseline is not
// nil. Both must have the dimensions of g.
func (e *Engine) Run(ctx context.Context, g Geometry, exp, baseline Intensities) (*Result, error) {
	p := e.Params
	err := p.Validate()
	if err != nil {
		return nil, err
	}
	log := e.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	workers := e.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	err = checkGeometry(g)
	if err != nil {
		return nil, err
	}
	for _, in := range []Intensities{exp, baseline} {
		if in != nil && (in.Rows() != g.Rows() || in.Cols() != g.Cols()) {
			return nil, fmt.Errorf("%w: chip is %dx%d, layout is %dx%d", ErrGeometry, in.Cols(), in.Rows(), g.Cols(), g.Rows())
		}
	}
	if si, ok := exp.(ScannerInfo); ok && si.FromHPScanner() {
		p.SaturatedIntensity = p.HPSaturatedIntensity
	}

	views := []*chipView{newChipView(exp)}
	if baseline != nil {
		views = append(views, newChipView(baseline))
	}
	applyProbeMask(g, p.ProbeMask, log, views...)
	for i, v := range views {
		if err := checkChip(v, g); err != nil {
			chip := "experiment"
			if i > 0 {
				chip = "baseline"
			}
			return nil, &ChipError{Chip: chip, Err: err}
		}
	}

	ea, err := p.analyze(ctx, workers, g, views[0])
	if err != nil {
		return nil, err
	}
	sf := p.scaleFactor(g, ea.abs)
	scaleSignals(ea.abs, sf)
	p.ScaleFactor = sf
	log.WithFields(logrus.Fields{"ScaleFactor": sf}).Debug("experiment analyzed")

	res := &Result{
		Abs:         ea.abs,
		Zones:       ea.zones,
		ScaleFactor: sf,
		NormFactor:  p.NormFactor,
	}

	if baseline != nil {
		ba, err := p.analyze(ctx, workers, g, views[1])
		if err != nil {
			return nil, err
		}
		bsf := p.scaleFactor(g, ba.abs)
		scaleSignals(ba.abs, bsf)
		p.BaseScaleFactor = bsf

		rn := p.relativeNormFactor(g, ea.view, ba.view, sf, bsf, selector(p.NormGenes))
		if !rn.ok {
			log.Warn("relative normalization failed, no comparison calls will be made")
		}
		comp := make([]CompStat, g.NumProbeSets())
		err = forEach(ctx, workers, len(comp), func(i int) error {
			comp[i] = p.compare(g.ProbeSet(i), ea.view, ba.view, ea.pairs[i], ba.pairs[i], rn)
			return nil
		})
		if err != nil {
			return nil, err
		}

		nf := p.normFactor(g, ea.abs, ba.abs)
		scaleSignals(ea.abs, nf)
		p.NormFactor = nf

		shiftE := logtwo(sf) + logtwo(nf)
		shiftB := logtwo(bsf)
		tt := newTTable(p.RelConfInterval)
		err = forEach(ctx, workers, len(comp), func(i int) error {
			epv, bpv := ea.pairs[i], ba.pairs[i]
			for j := range epv.PV {
				epv.PV[j] += shiftE
				bpv.PV[j] += shiftB
			}
			p.foldChange(tt, epv, bpv, &comp[i])
			return nil
		})
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"BaseScaleFactor": bsf,
			"NormFactor":      nf,
		}).Debug("comparison done")

		res.BaselineAbs = ba.abs
		res.BaselineZones = ba.zones
		res.Comp = comp
		res.BaseScaleFactor = bsf
		res.NormFactor = nf
		res.BaselineRawQ = rawQ(ba.view, g, &ba.zones, &p)
	}

	res.Background, res.Noise = backgroundNoiseStats(ea.pairs)
	res.RawQ = rawQ(ea.view, g, &ea.zones, &p)
	res.Controls = cornerControls(ea.view, g, &ea.zones, res.Noise)
	if e.WriteAdjusted {
		res.Adjusted = adjustedSurface(ea.view, &ea.zones, &p)
	}
	if !res.HasBaseline() {
		res.BaseScaleFactor = p.BaseScaleFactor
	}
	res.Params = p
	return res, nil
}

// analyze computes detection calls and unscaled signals for one chip.
func (p *Params) analyze(ctx context.Context, workers int, g Geometry, v *chipView) (*chipAnalysis, error) {
	n := g.NumProbeSets()
	ca := &chipAnalysis{
		view:  v,
		abs:   make([]AbsStat, n),
		pairs: make([]*pairValues, n),
	}
	err := forEach(ctx, workers, n, func(i int) error {
		ca.abs[i] = p.detect(v, g.ProbeSet(i))
		return nil
	})
	if err != nil {
		return nil, err
	}
	ca.zones = computeZones(v, g, p)
	err = forEach(ctx, workers, n, func(i int) error {
		ps := g.ProbeSet(i)
		pv := p.adjust(v, &ca.zones, ps)
		signal := p.measure(pv)
		ca.pairs[i] = pv
		if ca.abs[i].Detection == NoCall {
			ca.abs[i].Signal = 0
		} else if math.IsNaN(signal) || math.IsInf(signal, 0) {
			return fmt.Errorf("probe set %q: signal %v", ps.Name, signal)
		} else {
			ca.abs[i].Signal = float32(signal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ca, nil
}

// applyProbeMask masks both probes of each listed pair on every
// view. Unknown probe set names and out-of-range pair indices are
// skipped.
func applyProbeMask(g Geometry, mask []MaskEntry, log logrus.FieldLogger, views ...*chipView) {
	if len(mask) == 0 {
		return
	}
	idx := Index(g)
	for _, m := range mask {
		i, ok := idx[m.Name]
		if !ok {
			log.WithField("ProbeSet", m.Name).Warn("probe mask refers to unknown probe set, skipping")
			continue
		}
		ps := g.ProbeSet(i)
		pairs := m.Pairs
		if pairs == nil {
			pairs = make([]int, len(ps.Pairs))
			for j := range pairs {
				pairs[j] = j
			}
		}
		for _, j := range pairs {
			if j < 0 || j >= len(ps.Pairs) {
				continue
			}
			for _, v := range views {
				v.setMasked(ps.Pairs[j].PM)
				v.setMasked(ps.Pairs[j].MM)
			}
		}
	}
}
