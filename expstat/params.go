// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import (
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ghodss/yaml"
)

type ScaleMethod int

const (
	ScaleToAll ScaleMethod = iota
	ScaleToSelected
	DefinedScaling
)

var scaleMethodName = [...]string{
	ScaleToAll:      "SCALE_TO_ALL_PROBE_SETS",
	ScaleToSelected: "SCALE_TO_SELECTED_PROBE_SETS",
	DefinedScaling:  "DEFINED_SCALING_FACTOR",
}

func (m ScaleMethod) String() string { return scaleMethodName[m] }

type NormMethod int

const (
	NormToAll NormMethod = iota
	NormToSelected
	DefinedNormalization
)

var normMethodName = [...]string{
	NormToAll:            "NORM_TO_ALL_PROBE_SETS",
	NormToSelected:       "NORM_TO_SELECTED_PROBE_SETS",
	DefinedNormalization: "DEFINED_NORMALIZATION_FACTOR",
}

func (m NormMethod) String() string { return normMethodName[m] }

// MaskEntry selects pairs (0-based) of a named probe set. A nil
// Pairs slice selects every pair.
type MaskEntry struct {
	Name  string
	Pairs []int
}

// Params holds the MAS5 algorithm settings.
type Params struct {
	Alpha1       float64
	Alpha2       float64
	Tau          float64
	TGT          float64
	Gamma1H      float64
	Gamma1L      float64
	Gamma2H      float64
	Gamma2L      float64
	Perturbation float64
	CMultiplier  float64
	BHCoef       float64
	BLCoef       float64
	BiasCorrect  float64
	ContrastTau  float64
	ScaleTau     float64
	Delta        float64
	Epsilon      float64

	EpsilonAvgLogInten         float64
	EpsilonAvgLogRatio         float64
	EpsilonGammas              float64
	EpsilonSB                  float64
	TuningConstantCAvgLogInten float64
	TuningConstantCAvgLogRatio float64
	TuningConstantCGammas      float64
	TuningConstantCSB          float64

	IntensityLowPercent  float64
	IntensityHighPercent float64
	NoiseFrac            float64
	NumberBGCells        float64
	NumberHorZones       int
	NumberVertZones      int
	SmoothFactorBG       float64
	RelConfInterval      float64
	STP                  float64
	SaturatedIntensity   float64
	HPSaturatedIntensity float64

	SFMethod        ScaleMethod
	NFMethod        NormMethod
	ScaleFactor     float64
	BaseScaleFactor float64
	NormFactor      float64

	// Probe set names used by ScaleToSelected and NormToSelected.
	ScaleGenes []string
	NormGenes  []string
	// Pairs excluded from every computation on both chips.
	ProbeMask []MaskEntry

	// Source file names, recorded in the parameter summary.
	ScaleMaskFile string
	NormMaskFile  string
	ProbeMaskFile string
}

func DefaultParams() Params {
	return Params{
		Alpha1:       0.05,
		Alpha2:       0.065,
		Tau:          0.015,
		TGT:          500,
		Gamma1H:      0.0045,
		Gamma1L:      0.0045,
		Gamma2H:      0.006,
		Gamma2L:      0.006,
		Perturbation: 1.1,
		CMultiplier:  0.2,
		BHCoef:       7.0,
		BLCoef:       0.8,
		BiasCorrect:  0,
		ContrastTau:  0.03,
		ScaleTau:     10,
		Delta:        math.Pow(2, -20),
		Epsilon:      0.5,

		EpsilonAvgLogInten:         0.0001,
		EpsilonAvgLogRatio:         0.0001,
		EpsilonGammas:              0.0001,
		EpsilonSB:                  0.0001,
		TuningConstantCAvgLogInten: 5,
		TuningConstantCAvgLogRatio: 5,
		TuningConstantCGammas:      5,
		TuningConstantCSB:          5,

		IntensityLowPercent:  2,
		IntensityHighPercent: 2,
		NoiseFrac:            0.5,
		NumberBGCells:        2,
		NumberHorZones:       4,
		NumberVertZones:      4,
		SmoothFactorBG:       100,
		RelConfInterval:      0.975,
		STP:                  3,
		SaturatedIntensity:   65000,
		HPSaturatedIntensity: 48000,

		SFMethod:        ScaleToAll,
		NFMethod:        NormToAll,
		ScaleFactor:     1,
		BaseScaleFactor: 1,
		NormFactor:      1,
	}
}

func (p *Params) floatFields() map[string]*float64 {
	return map[string]*float64{
		"alpha1":                     &p.Alpha1,
		"alpha2":                     &p.Alpha2,
		"tau":                        &p.Tau,
		"tgt":                        &p.TGT,
		"gamma1h":                    &p.Gamma1H,
		"gamma1l":                    &p.Gamma1L,
		"gamma2h":                    &p.Gamma2H,
		"gamma2l":                    &p.Gamma2L,
		"perturbation":               &p.Perturbation,
		"cmultiplier":                &p.CMultiplier,
		"bhcoef":                     &p.BHCoef,
		"blcoef":                     &p.BLCoef,
		"biascorrect":                &p.BiasCorrect,
		"contrasttau":                &p.ContrastTau,
		"scaletau":                   &p.ScaleTau,
		"delta":                      &p.Delta,
		"epsilon":                    &p.Epsilon,
		"epsilonavgloginten":         &p.EpsilonAvgLogInten,
		"epsilonavglogratio":         &p.EpsilonAvgLogRatio,
		"epsilongammas":              &p.EpsilonGammas,
		"epsilonsb":                  &p.EpsilonSB,
		"tuningconstantcavgloginten": &p.TuningConstantCAvgLogInten,
		"tuningconstantcavglogratio": &p.TuningConstantCAvgLogRatio,
		"tuningconstantcgammas":      &p.TuningConstantCGammas,
		"tuningconstantcsb":          &p.TuningConstantCSB,
		"intensitylowpercent":        &p.IntensityLowPercent,
		"intensityhighpercent":       &p.IntensityHighPercent,
		"noisefrac":                  &p.NoiseFrac,
		"numberbgcells":              &p.NumberBGCells,
		"smoothfactorbg":             &p.SmoothFactorBG,
		"relconfinterval":            &p.RelConfInterval,
		"stp":                        &p.STP,
		"saturatedintensity":         &p.SaturatedIntensity,
		"hpsaturatedintensity":       &p.HPSaturatedIntensity,
		"basescalefactor":            &p.BaseScaleFactor,
		"normfactor":                 &p.NormFactor,
	}
}

// Set assigns a parameter by its MAS5 name. Names are not case
// sensitive.
func (p *Params) Set(name, value string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	parseFloat := func() (float64, error) {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %s: %w", name, err)
		}
		return f, nil
	}
	if ptr, ok := p.floatFields()[key]; ok {
		f, err := parseFloat()
		if err != nil {
			return err
		}
		*ptr = f
		return nil
	}
	switch key {
	case "scalefactor":
		f, err := parseFloat()
		if err != nil {
			return err
		}
		p.ScaleFactor, p.BaseScaleFactor = f, f
	case "numberhorzones", "hz":
		f, err := parseFloat()
		if err != nil {
			return err
		}
		p.NumberHorZones = int(f)
	case "numbervertzones", "vz":
		f, err := parseFloat()
		if err != nil {
			return err
		}
		p.NumberVertZones = int(f)
	case "sfmethod":
		for m, s := range scaleMethodName {
			if strings.EqualFold(s, value) {
				p.SFMethod = ScaleMethod(m)
				return nil
			}
		}
		return fmt.Errorf("parameter %s: unknown scaling method %q", name, value)
	case "nfmethod":
		for m, s := range normMethodName {
			if strings.EqualFold(s, value) {
				p.NFMethod = NormMethod(m)
				return nil
			}
		}
		return fmt.Errorf("parameter %s: unknown normalization method %q", name, value)
	case "scalemaskfile":
		p.ScaleMaskFile = value
	case "normmaskfile":
		p.NormMaskFile = value
	case "probemaskfile":
		p.ProbeMaskFile = value
	default:
		return fmt.Errorf("unknown parameter %q", name)
	}
	return nil
}

// LoadParams reads a YAML or JSON mapping of parameter names to
// values on top of the defaults.
func LoadParams(r io.Reader) (Params, error) {
	p := DefaultParams()
	buf, err := ioutil.ReadAll(r)
	if err != nil {
		return p, err
	}
	var m map[string]interface{}
	err = yaml.Unmarshal(buf, &m)
	if err != nil {
		return p, fmt.Errorf("parsing parameters: %w", err)
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	// "ScaleFactor" sets BaseScaleFactor too, so it goes first and an
	// explicit BaseScaleFactor wins.
	sort.Slice(names, func(i, j int) bool {
		si, sj := strings.EqualFold(names[i], "scalefactor"), strings.EqualFold(names[j], "scalefactor")
		if si != sj {
			return si
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		err = p.Set(name, fmt.Sprint(m[name]))
		if err != nil {
			return p, err
		}
	}
	return p, p.Validate()
}

func (p *Params) Validate() error {
	switch {
	case p.NumberHorZones < 1 || p.NumberVertZones < 1:
		return fmt.Errorf("invalid zone grid %dx%d", p.NumberVertZones, p.NumberHorZones)
	case p.Perturbation <= 0:
		return fmt.Errorf("invalid Perturbation %v", p.Perturbation)
	case p.IntensityLowPercent < 0 || p.IntensityLowPercent >= 100:
		return fmt.Errorf("invalid IntensityLowPercent %v", p.IntensityLowPercent)
	case p.IntensityHighPercent < 0 || p.IntensityHighPercent >= 100:
		return fmt.Errorf("invalid IntensityHighPercent %v", p.IntensityHighPercent)
	case p.NumberBGCells <= 0 || p.NumberBGCells > 100:
		return fmt.Errorf("invalid NumberBGCells %v", p.NumberBGCells)
	case p.RelConfInterval <= 0 || p.RelConfInterval >= 1:
		return fmt.Errorf("invalid RelConfInterval %v", p.RelConfInterval)
	case p.Alpha1 <= 0 || p.Alpha2 < p.Alpha1 || p.Alpha2 >= 0.5:
		return fmt.Errorf("invalid Alpha1/Alpha2 %v/%v", p.Alpha1, p.Alpha2)
	}
	return nil
}

// NameValue is one entry of a parameter summary.
type NameValue struct {
	Name  string
	Value string
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Summary lists the parameters stored alongside results, in the
// order used by CHP and RPT output. Comparison parameters are
// included if comparison is true.
func (p *Params) Summary(comparison bool) []NameValue {
	s := []NameValue{
		{"HZ", strconv.Itoa(p.NumberHorZones)},
		{"VZ", strconv.Itoa(p.NumberVertZones)},
		{"BG", strconv.Itoa(int(p.IntensityLowPercent))},
		{"Alpha1", formatFloat(p.Alpha1)},
		{"Alpha2", formatFloat(p.Alpha2)},
		{"Tau", formatFloat(p.Tau)},
	}
	if p.SFMethod != DefinedScaling {
		s = append(s, NameValue{"TGT", strconv.Itoa(int(p.TGT))})
	}
	s = append(s,
		NameValue{"SF", formatFloat(p.ScaleFactor)},
		NameValue{"NF", formatFloat(p.NormFactor)})
	if p.ProbeMaskFile != "" {
		s = append(s, NameValue{"ProbeMask", p.ProbeMaskFile})
	}
	s = append(s, NameValue{"ScaleMask", maskName(p.SFMethod == ScaleToSelected, p.ScaleMaskFile)})
	if comparison {
		s = append(s,
			NameValue{"Gamma1L", formatFloat(p.Gamma1L)},
			NameValue{"Gamma1H", formatFloat(p.Gamma1H)},
			NameValue{"Gamma2L", formatFloat(p.Gamma2L)},
			NameValue{"Gamma2H", formatFloat(p.Gamma2H)},
			NameValue{"Perturbation", formatFloat(p.Perturbation)},
			NameValue{"NormMask", maskName(p.NFMethod == NormToSelected, p.NormMaskFile)},
			NameValue{"BaselineSF", formatFloat(p.BaseScaleFactor)})
	}
	return s
}

func maskName(selected bool, file string) string {
	if !selected || file == "" {
		return "All"
	}
	return file
}
