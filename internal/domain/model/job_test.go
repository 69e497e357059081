package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		wantErr bool
	}{
		{"queued to processing", JobStatusQueued, JobStatusProcessing, false},
		{"processing to success", JobStatusProcessing, JobStatusSuccess, false},
		{"processing to failed", JobStatusProcessing, JobStatusFailed, false},
		{"queued to success skips processing", JobStatusQueued, JobStatusSuccess, true},
		{"queued to failed skips processing", JobStatusQueued, JobStatusFailed, true},
		{"success is terminal", JobStatusSuccess, JobStatusProcessing, true},
		{"success cannot fail", JobStatusSuccess, JobStatusFailed, true},
		{"failed is terminal", JobStatusFailed, JobStatusQueued, true},
		{"failed cannot succeed", JobStatusFailed, JobStatusSuccess, true},
		{"processing cannot requeue", JobStatusProcessing, JobStatusQueued, true},
		{"no self transition", JobStatusProcessing, JobStatusProcessing, true},
		{"unknown from status", JobStatus("bogus"), JobStatusProcessing, true},
		{"unknown to status", JobStatusQueued, JobStatus("bogus"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusQueued.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusSuccess.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestJob_DecodeResult(t *testing.T) {
	t.Run("empty result decodes to nil", func(t *testing.T) {
		j := &Job{}
		res, err := j.DecodeResult()
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("round trip", func(t *testing.T) {
		want := JobResult{
			InvoiceRecords: []InvoiceSummary{{Vendor: "ACME Supplies Pvt Ltd", TotalAmount: 11210, Currency: "USD", Confidence: 0.9}},
			SummaryText:    "Vendor: ACME Supplies Pvt Ltd | Total: USD 11210",
			Confidence:     0.9,
		}
		raw, err := json.Marshal(want)
		require.NoError(t, err)

		j := &Job{Result: raw}
		got, err := j.DecodeResult()
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		j := &Job{Result: json.RawMessage(`{`)}
		_, err := j.DecodeResult()
		assert.Error(t, err)
	})
}

func TestWorkItem_Validate(t *testing.T) {
	assert.NoError(t, (&WorkItem{JobID: "j1", MessageID: "m1"}).Validate())
	assert.Error(t, (&WorkItem{MessageID: "m1"}).Validate())
	assert.Error(t, (&WorkItem{JobID: "j1", MessageID: "  "}).Validate())
}
