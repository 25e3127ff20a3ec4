// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ops

import "fmt"

type parseError struct {
	message string
}

func (e *parseError) Error() string { return e.message }

var errEmptyInput = &parseError{message: "operation string is empty"}

func errEmptyGroupIn(input, group string) error {
	return &parseError{message: fmt.Sprintf("empty stage group %q in %q", group, input)}
}

func errMismatched(input string) error {
	return &parseError{message: fmt.Sprintf("mismatched brackets in %q", input)}
}

func errNested(input string) error {
	return &parseError{message: fmt.Sprintf("nested brackets are not allowed: %q", input)}
}

func errInvalidSyntax(input, reason string) error {
	return &parseError{message: fmt.Sprintf("invalid syntax in %q: %s", input, reason)}
}
