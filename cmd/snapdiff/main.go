// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command snapdiff records test suite snapshots and gates CI runs on the
// differences between them.
//
// Usage:
//
//	go test -json ./... | snapdiff record pr
//	snapdiff gate main pr --fail-on any --markdown report.md
//	snapdiff diff v1 v2 --perf
//	snapdiff show pr --top-slowest 5
//	snapdiff serve --addr :8090
//
// Exit codes:
//
//	0 success, or the gate passed
//	1 the gate failed
//	2 usage error, missing snapshot or I/O failure
package main

import "os"

func main() {
	os.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr))
}
