package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout)

	cfg = Config{RunInterval: 5 * time.Second, JobTimeout: time.Minute}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.RunInterval)
	assert.Equal(t, time.Minute, cfg.JobTimeout)
}

func TestConfigJobEnabled(t *testing.T) {
	all := Config{}
	for _, name := range []string{JobNightlyDebit, JobPayoutDisburse, JobCollectRetry} {
		assert.True(t, all.jobEnabled(name), name)
	}

	limited := Config{EnabledJobs: []string{" Nightly_Debit ", "payout_disburse"}}
	assert.True(t, limited.jobEnabled(JobNightlyDebit), "names match case-insensitively, ignoring padding")
	assert.True(t, limited.jobEnabled(JobPayoutDisburse))
	assert.False(t, limited.jobEnabled(JobMonthlyInvoice))
	assert.False(t, limited.jobEnabled(JobCollectRetry))
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
