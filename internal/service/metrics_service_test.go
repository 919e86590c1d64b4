package service

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMetricsLedgerCounters(t *testing.T) {
	m := NewMetricsService()

	m.LoanOpened()
	m.LoanOpened()
	m.LoanReturned(decimal.RequireFromString("6.00"))
	m.LoanRejected("BOOK_UNAVAILABLE")
	m.OverdueReclassified(3)
	m.OverdueReclassified(0)
	m.JobFinished(JobOverdueRefresh, nil)
	m.JobFinished(JobOverdueRefresh, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.loansOpened))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loansReturned))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.penalties))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loanRejections.WithLabelValues("BOOK_UNAVAILABLE")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reclassified))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues(JobOverdueRefresh, "failure")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *MetricsService

	assert.NotPanics(t, func() {
		m.LoanOpened()
		m.LoanRejected("X")
		m.ObserveHTTPRequest("GET", "/", 200, 0)
		m.RecordCacheOperation(true, 0)
	})
	assert.Nil(t, m.Registry())
}
