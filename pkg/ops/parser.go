// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ops parses the pipeline operation-string DSL
// ("a;[b,c];d") into ordered stage groups: outer list is
// sequential, each inner list runs in parallel.
//
// Grammar (whitespace ignored):
//
//	pipeline := stage (';' stage)*
//	stage    := parallel | single
//	parallel := '[' op (',' op)* ']'
//	single   := op
//	op       := identifier
//
// Backward compatibility: when the input has no ';' and no '['/']',
// commas separate sequential stages instead of a single parallel
// stage, preserving the meaning of pre-bracket recipes.
package ops

import (
	"strings"

	"github.com/ingestlabs/extractcore/internal/xerrors"
)

// Stages is the parsed result: outer = sequential stage groups,
// inner = op names that run in parallel within that stage.
type Stages [][]string

// Parse parses an operation string into ordered stage groups.
func Parse(input string) (Stages, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, xerrors.NewInputInvalid(errEmptyInput)
	}

	if err := validateBrackets(trimmed); err != nil {
		return nil, err
	}

	if !strings.Contains(trimmed, ";") && !strings.ContainsAny(trimmed, "[]") {
		return parseLegacyForm(trimmed)
	}

	rawStages := strings.Split(trimmed, ";")
	var stages Stages
	for _, rawStage := range rawStages {
		stage := strings.TrimSpace(rawStage)
		if stage == "" {
			return nil, xerrors.NewInputInvalid(errEmptyGroupIn(trimmed, rawStage))
		}
		group, err := parseStage(stage, trimmed, len(rawStages) > 1)
		if err != nil {
			return nil, err
		}
		stages = append(stages, group)
	}
	return stages, nil
}

func parseLegacyForm(input string) (Stages, error) {
	var stages Stages
	for _, part := range strings.Split(input, ",") {
		op := strings.TrimSpace(part)
		if op == "" {
			continue // trailing commas are silently ignored
		}
		stages = append(stages, []string{op})
	}
	if len(stages) == 0 {
		return nil, xerrors.NewInputInvalid(errEmptyInput)
	}
	return stages, nil
}

// parseStage parses a single (already semicolon-split) stage.
// multiStage indicates whether the pipeline had more than one
// semicolon-separated stage, which distinguishes "[]" alone (a
// malformed single-stage pipeline, InvalidSyntax) from "a;[];b"
// (a structurally empty stage within a larger pipeline, EmptyGroup).
func parseStage(stage, original string, multiStage bool) ([]string, error) {
	if strings.HasPrefix(stage, "[") {
		if !strings.HasSuffix(stage, "]") {
			return nil, xerrors.NewInputInvalid(errMismatched(original))
		}
		return parseGroup(stage[1:len(stage)-1], original, multiStage)
	}

	id := strings.TrimSpace(stage)
	if id == "" {
		return nil, xerrors.NewInputInvalid(errEmptyGroupIn(original, stage))
	}
	return []string{id}, nil
}

func parseGroup(inner, original string, multiStage bool) ([]string, error) {
	var ops []string
	for _, part := range strings.Split(inner, ",") {
		op := strings.TrimSpace(part)
		if op == "" {
			continue // trailing comma inside a bracket group is ignored
		}
		ops = append(ops, op)
	}
	if len(ops) == 0 {
		if multiStage {
			return nil, xerrors.NewInputInvalid(errEmptyGroupIn(original, "["+inner+"]"))
		}
		return nil, xerrors.NewInputInvalid(errInvalidSyntax(original, "empty bracket group"))
	}
	return ops, nil
}

// validateBrackets rejects nested brackets and mismatched open/close
// counts without building any intermediate structure.
func validateBrackets(input string) error {
	depth := 0
	for _, r := range input {
		switch r {
		case '[':
			depth++
			if depth > 1 {
				return xerrors.NewInputInvalid(errNested(input))
			}
		case ']':
			depth--
			if depth < 0 {
				return xerrors.NewInputInvalid(errMismatched(input))
			}
		}
	}
	if depth != 0 {
		return xerrors.NewInputInvalid(errMismatched(input))
	}
	return nil
}
