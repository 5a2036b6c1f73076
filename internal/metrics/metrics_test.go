package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObserveUtterance(t *testing.T) {
	before := testutil.ToFloat64(utterancesTotal.WithLabelValues("NO_MATCH"))
	ObserveUtterance("NO_MATCH", -time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(utterancesTotal.WithLabelValues("NO_MATCH")))
}

func TestIncNotification(t *testing.T) {
	before := testutil.ToFloat64(notificationsTotal.WithLabelValues("sms", "failure"))
	IncNotification("sms", false)
	assert.Equal(t, before+1, testutil.ToFloat64(notificationsTotal.WithLabelValues("sms", "failure")))
}
