// Package labels provides consistent labeling for created instances.
//
// Labels carry scheduler ownership onto the cloud resource so instances can
// be identified, grouped and cleaned up without consulting scheduler state.
package labels

import "strconv"

// KeyJobID marks an instance as exclusively owned by one scheduler job.
const KeyJobID = "slurm_job_id"

// ForJob returns the labels identifying an exclusively owned instance.
func ForJob(jobID int64) map[string]string {
	return map[string]string{KeyJobID: strconv.FormatInt(jobID, 10)}
}

// Merge overlays extra on top of base without mutating either. Keys in
// extra win.
func Merge(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
