// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cartograph/cartograph/internal/errs"
)

// exit codes for the operator CLI, mirroring the error kinds.
const (
	ExitSuccess = 0
	ExitInput   = 1
	ExitNetwork = 2
	ExitLLM     = 3
	ExitNotFound = 4
	ExitInternal = 10
)

func exitCodeFor(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalidInput:
		return ExitInput
	case errs.KindNotFound:
		return ExitNotFound
	case errs.KindRateLimitedHost:
		return ExitNetwork
	case errs.KindUnauthorizedLLM, errs.KindRateLimitedLLM, errs.KindLLMFailure:
		return ExitLLM
	default:
		return ExitInternal
	}
}

// FatalError prints err and exits with a code derived from its Kind.
// It never returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	var ce *errs.CartographError
	if errs.As(err, &ce) {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(ce.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, Format(ce))
		}
		os.Exit(exitCodeFor(ce.Kind))
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}

// Format renders a CartographError for terminal display.
func Format(e *errs.CartographError) string {
	var out string
	out += Red.Sprint("Error: ") + e.Message + "\n"
	if e.Cause != "" {
		out += Yellow.Sprint("Cause: ") + e.Cause + "\n"
	}
	if e.Fix != "" {
		out += Green.Sprint("Fix:   ") + e.Fix + "\n"
	}
	return out
}
