package resume

import (
	"github.com/sirupsen/logrus"

	"github.com/hpcops/resumectl/internal/config"
	"github.com/hpcops/resumectl/internal/hostlist"
)

// Classifier splits node lists along configuration axes. It has no side
// effects beyond logging.
type Classifier struct {
	lkp *config.Lookup
	log logrus.FieldLogger
}

// NewClassifier creates a Classifier over the given lookup.
func NewClassifier(lkp *config.Lookup, log logrus.FieldLogger) *Classifier {
	return &Classifier{lkp: lkp, log: log}
}

// PowerManaged filters the input down to nodes this cluster power-manages.
// Externally managed nodes are logged and dropped.
func (c *Classifier) PowerManaged(nodes []string) []string {
	managed, other := Separate(nodes, c.lkp.IsPowerManaged)
	if len(other) > 0 {
		c.log.Errorf("ignoring non-power-managed nodes %q", hostlist.Compress(other))
	}
	return managed
}

// SplitAccelerator splits nodes into accelerator-pod and conventional
// buckets using nodeset metadata.
func (c *Classifier) SplitAccelerator(nodes []string) (accelerator, conventional []string) {
	return Separate(nodes, c.lkp.NodeIsAccelerator)
}

// Separate splits nodes into those matching the predicate and the rest,
// preserving input order.
func Separate(nodes []string, pred func(string) bool) (matching, rest []string) {
	for _, n := range nodes {
		if pred(n) {
			matching = append(matching, n)
		} else {
			rest = append(rest, n)
		}
	}
	return matching, rest
}
