package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordBulk(t *testing.T) {
	before := testutil.ToFloat64(bulkItemsTotal.WithLabelValues("add-tags", "ok"))
	RecordBulk("add-tags", 3, 1, 0.2)
	assert.Equal(t, before+3, testutil.ToFloat64(bulkItemsTotal.WithLabelValues("add-tags", "ok")))
}

func TestRecordDeletionAndRestore(t *testing.T) {
	before := testutil.ToFloat64(deletionsTotal.WithLabelValues("ok"))
	RecordDeletion("ok")
	assert.Equal(t, before+1, testutil.ToFloat64(deletionsTotal.WithLabelValues("ok")))

	before = testutil.ToFloat64(restoresTotal.WithLabelValues("noop"))
	RecordRestore("noop")
	assert.Equal(t, before+1, testutil.ToFloat64(restoresTotal.WithLabelValues("noop")))
}

func TestRecordWebhookDelivery(t *testing.T) {
	before := testutil.ToFloat64(webhookDeliveriesTotal.WithLabelValues("dropped"))
	RecordWebhookDelivery("dropped")
	assert.Equal(t, before+1, testutil.ToFloat64(webhookDeliveriesTotal.WithLabelValues("dropped")))
}
