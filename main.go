// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

package main

import "github.com/casperlabs/casper-node/cmd"

func main() {
	cmd.Execute()
}
