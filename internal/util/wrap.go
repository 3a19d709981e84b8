// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import "fmt"

// Wrapf wraps *err with a formatted prefix, if *err is non-nil.
//
// It is meant to be used with defer, to annotate the error return of a
// function with the function's name and arguments:
//
//	func frob(x int) (err error) {
//		defer util.Wrapf(&err, "frob(%d)", x)
//		...
//	}
func Wrapf(err *error, format string, args ...any) {
	if *err != nil {
		*err = fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), *err)
	}
}
