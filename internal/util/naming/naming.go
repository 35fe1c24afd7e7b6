// Package naming holds the name patterns for resources the resume pipeline
// creates. Every name is a pure function of cluster configuration, so
// repeated resume calls converge on the same resources.
package naming

import "fmt"

// Node is the canonical node name: {cluster}-{nodeset}-{index}.
func Node(cluster, nodeset string, index int) string {
	return fmt.Sprintf("%s-%s-%d", cluster, nodeset, index)
}

// NodePrefix is the shared prefix of all nodes of a nodeset.
func NodePrefix(cluster, nodeset string) string {
	return fmt.Sprintf("%s-%s", cluster, nodeset)
}

// PlacementGroup names the locality policy for one job's chunk of a
// nodeset. The index distinguishes chunks once a job spans more nodes than
// a single policy may hold.
func PlacementGroup(cluster, nodeset string, jobID int64, index int) string {
	return fmt.Sprintf("%s-slurmgcp-managed-%s-%d-%d", cluster, nodeset, jobID, index)
}
