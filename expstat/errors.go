// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import (
	"errors"
	"fmt"
)

var (
	ErrNonExpression = errors.New("unable to run algorithm on non-expression arrays")
	ErrAllMasked     = errors.New("all data has been masked")
	ErrAllZero       = errors.New("all data is zero")
	ErrGeometry      = errors.New("array geometry mismatch")
)

// ChipError reports a chip that cannot be analyzed at all.
type ChipError struct {
	Chip string // "experiment" or "baseline"
	Err  error
}

func (e *ChipError) Error() string {
	data := "data"
	if e.Chip == "baseline" {
		data = "baseline data"
	}
	switch e.Err {
	case ErrAllMasked:
		return fmt.Sprintf("Unable to compute expression results. The %s has all been masked.", data)
	case ErrAllZero:
		return fmt.Sprintf("Unable to compute expression results. The %s is all zeros.", data)
	}
	return fmt.Sprintf("%s chip: %s", e.Chip, e.Err)
}

func (e *ChipError) Unwrap() error { return e.Err }
