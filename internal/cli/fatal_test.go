// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package cli

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cartograph/cartograph/internal/errs"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		kind errs.Kind
		want int
	}{
		{errs.KindInvalidInput, ExitInput},
		{errs.KindNotFound, ExitNotFound},
		{errs.KindRateLimitedHost, ExitNetwork},
		{errs.KindUnauthorizedLLM, ExitLLM},
		{errs.KindRateLimitedLLM, ExitLLM},
		{errs.KindLLMFailure, ExitLLM},
		{errs.KindInternal, ExitInternal},
		{errs.KindParseFailure, ExitInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := exitCodeFor(tt.kind); got != tt.want {
				t.Errorf("exitCodeFor(%q) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	err := &errs.CartographError{
		Kind:    errs.KindNotFound,
		Message: "repository not found",
		Cause:   "no row matched repo_id",
		Fix:     "check the repo_id and retry",
	}

	out := Format(err)
	for _, want := range []string{"repository not found", "no row matched repo_id", "check the repo_id and retry"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q, got: %s", want, out)
		}
	}
}

// TestFatalError_NilDoesNothing verifies the nil-error no-op path; the
// exiting path cannot be exercised in-process since it calls os.Exit.
func TestFatalError_NilDoesNothing(t *testing.T) {
	FatalError(nil, false)
	FatalError(nil, true)
}

func TestFatalError_AcceptsPlainError(t *testing.T) {
	// Document that FatalError accepts non-CartographError values; the
	// exit path itself is not exercised here.
	err := fmt.Errorf("generic failure")
	_ = err
}

