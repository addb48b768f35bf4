// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFetchRetry_IncrementsCounter(t *testing.T) {
	m.init()
	before := testutil.ToFloat64(m.fetchRetries)
	RecordFetchRetry()
	after := testutil.ToFloat64(m.fetchRetries)

	if after != before+1 {
		t.Errorf("fetchRetries = %v, want %v", after, before+1)
	}
}

func TestRecordLLMAndEmbedRetry_IncrementIndependently(t *testing.T) {
	m.init()
	beforeLLM := testutil.ToFloat64(m.llmRetries)
	beforeEmbed := testutil.ToFloat64(m.embedRetries)

	RecordLLMRetry()
	RecordEmbedRetry()
	RecordEmbedRetry()

	if got := testutil.ToFloat64(m.llmRetries); got != beforeLLM+1 {
		t.Errorf("llmRetries = %v, want %v", got, beforeLLM+1)
	}
	if got := testutil.ToFloat64(m.embedRetries); got != beforeEmbed+2 {
		t.Errorf("embedRetries = %v, want %v", got, beforeEmbed+2)
	}
}

func TestRecordStageFailure_PerStageLabel(t *testing.T) {
	m.init()
	before := testutil.ToFloat64(m.pipelineStageFailures.WithLabelValues("parse"))
	RecordStageFailure("parse")
	after := testutil.ToFloat64(m.pipelineStageFailures.WithLabelValues("parse"))

	if after != before+1 {
		t.Errorf("pipelineStageFailures{stage=parse} = %v, want %v", after, before+1)
	}
}

func TestRecordToolCall_PerToolLabel(t *testing.T) {
	m.init()
	before := testutil.ToFloat64(m.queryToolCalls.WithLabelValues("search_code"))
	RecordToolCall("search_code")
	after := testutil.ToFloat64(m.queryToolCalls.WithLabelValues("search_code"))

	if after != before+1 {
		t.Errorf("queryToolCalls{tool=search_code} = %v, want %v", after, before+1)
	}
}

func TestRecordQueryTurn_IncrementsCounter(t *testing.T) {
	m.init()
	before := testutil.ToFloat64(m.queryTurns)
	RecordQueryTurn()
	after := testutil.ToFloat64(m.queryTurns)

	if after != before+1 {
		t.Errorf("queryTurns = %v, want %v", after, before+1)
	}
}

func TestObservePipelineStageAndSearch_DoNotPanic(t *testing.T) {
	ObservePipelineStage("fetch", 150*time.Millisecond)
	ObserveSearch(20*time.Millisecond, 8)
}

func TestRegistry_ReturnsGatherer(t *testing.T) {
	families, err := Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	if len(families) == 0 {
		t.Errorf("expected at least one registered metric family")
	}
}
