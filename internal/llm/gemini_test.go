// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package llm

import "testing"

func TestToGeminiContents_MapsRoles(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "be concise"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}

	got := toGeminiContents(msgs)
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	if got[0].Role != "user" {
		t.Errorf("system role should fold into user, got %q", got[0].Role)
	}
	if got[1].Role != "user" {
		t.Errorf("user role should stay user, got %q", got[1].Role)
	}
	if got[2].Role != "model" {
		t.Errorf("assistant role should map to model, got %q", got[2].Role)
	}
	if got[2].Parts[0].Text != "hi there" {
		t.Errorf("Parts[0].Text = %q, want %q", got[2].Parts[0].Text, "hi there")
	}
}
