package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTransactionsTotalIncrementsByLabel(t *testing.T) {
	before := testutil.ToFloat64(TransactionsTotal.WithLabelValues("editor", "synchronize", "ok"))
	TransactionsTotal.WithLabelValues("editor", "synchronize", "ok").Inc()
	after := testutil.ToFloat64(TransactionsTotal.WithLabelValues("editor", "synchronize", "ok"))
	require.Equal(t, before+1, after)
}

func TestDedupBytesSavedAccumulates(t *testing.T) {
	before := testutil.ToFloat64(DedupBytesSaved)
	DedupBytesSaved.Add(4096)
	after := testutil.ToFloat64(DedupBytesSaved)
	require.Equal(t, before+4096, after)
}

func TestTimerObservesPositiveDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	timer.ObserveDuration(TransactionDuration.WithLabelValues("commit"))
	// No panic and a non-nil histogram observation is the observable contract here;
	// exact bucket counts aren't worth asserting on.
}
