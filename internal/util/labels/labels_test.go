package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForJob(t *testing.T) {
	assert.Equal(t, map[string]string{"slurm_job_id": "42"}, ForJob(42))
}

func TestMerge(t *testing.T) {
	base := map[string]string{"env": "prod", "team": "hpc"}
	extra := map[string]string{"team": "ml", "slurm_job_id": "7"}

	merged := Merge(base, extra)
	assert.Equal(t, map[string]string{"env": "prod", "team": "ml", "slurm_job_id": "7"}, merged)

	// Inputs stay untouched.
	assert.Equal(t, "hpc", base["team"])
	assert.NotContains(t, base, "slurm_job_id")

	assert.Empty(t, Merge(nil, nil))
	assert.Equal(t, map[string]string{"a": "1"}, Merge(map[string]string{"a": "1"}, nil))
}
