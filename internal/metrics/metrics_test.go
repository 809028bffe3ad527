package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.MatchRun(OutcomeSuccess, 3, 10*time.Millisecond)
	m.MatchRun(OutcomeSuccess, 2, 10*time.Millisecond)
	m.SchedulerRun(OutcomeThrottled)
	m.FollowUpCreated("follow_up_1")
	m.FollowUpSkipped()
	m.Dispatch("ok")

	assert.InDelta(t, 2, testutil.ToFloat64(m.MatchRunsTotal.WithLabelValues(OutcomeSuccess)), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(m.CandidatesMatched), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SchedulerRunsTotal.WithLabelValues(OutcomeThrottled)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FollowUpsCreated.WithLabelValues("follow_up_1")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FollowUpsSkipped), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DispatchesTotal.WithLabelValues("ok")), 0)
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.MatchRun(OutcomeError, 0, time.Second)
		m.SchedulerRun(OutcomeSuccess)
		m.FollowUpCreated("follow_up_2")
		m.FollowUpSkipped()
		m.Dispatch("error")
		m.HTTPRequest("POST", "/api/match", "200", time.Millisecond)
	})
}
