package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(edgeChanges.WithLabelValues("follow", "true"))
	EdgeChange("follow", true)
	assert.Equal(t, before+1, testutil.ToFloat64(edgeChanges.WithLabelValues("follow", "true")))

	before = testutil.ToFloat64(credentialChecks.WithLabelValues("remember", "fail"))
	CredentialCheck("remember", false)
	assert.Equal(t, before+1, testutil.ToFloat64(credentialChecks.WithLabelValues("remember", "fail")))

	before = testutil.ToFloat64(notifications.WithLabelValues("account.activation", "ok"))
	Notification("account.activation", true)
	assert.Equal(t, before+1, testutil.ToFloat64(notifications.WithLabelValues("account.activation", "ok")))

	before = testutil.ToFloat64(cdcEvents.WithLabelValues("c", "ok"))
	CDCEvent("c", true)
	assert.Equal(t, before+1, testutil.ToFloat64(cdcEvents.WithLabelValues("c", "ok")))
}
