// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import mas5 "github.com/rcallahan/affymetrix-power-tools-sub006"

func main() {
	mas5.Main()
}
