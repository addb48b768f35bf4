// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package llm

import (
	"fmt"

	"github.com/cartograph/cartograph/internal/errs"
)

// Fallback is the operator-configured {provider, model, api_key}
// triple used when a Session has not set preferences yet, per spec
// §4.D's "determined per request from Session preferences (or
// development fallback)".
type Fallback struct {
	Provider string
	Model    string
	APIKey   string
}

// Resolve builds the Credentials for one request: provider and model
// come from Session preferences, falling back to the operator's
// configured defaults, then to DefaultModelFor when even the fallback
// leaves the model unset. The API key is always the operator's
// configured key — Sessions do not carry their own.
func Resolve(prefProvider, prefModel string, fallback Fallback) (Credentials, error) {
	provider := prefProvider
	if provider == "" {
		provider = fallback.Provider
	}
	if provider == "" {
		return Credentials{}, errs.NewInvalidInput("no provider: set session preferences or configure a default provider", nil)
	}

	model := prefModel
	if model == "" && provider == fallback.Provider {
		model = fallback.Model
	}
	if model == "" {
		model = DefaultModelFor(provider)
	}
	if model == "" {
		return Credentials{}, errs.NewInvalidInput(fmt.Sprintf("no default model for provider %q: set session preferences", provider), nil)
	}

	return Credentials{Provider: provider, Model: model, APIKey: fallback.APIKey}, nil
}
