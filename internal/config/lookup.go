package config

import (
	"strings"
)

// Lookup answers node and partition metadata questions against a loaded
// Config. It is constructed once at startup and passed explicitly to every
// component that needs it; there is no process-wide accessor.
type Lookup struct {
	cfg *Config
}

// NewLookup creates a Lookup over the given configuration.
func NewLookup(cfg *Config) *Lookup {
	return &Lookup{cfg: cfg}
}

// Config returns the underlying configuration.
func (l *Lookup) Config() *Config {
	return l.cfg
}

// NodePrefix returns the node name with its trailing numeric index removed,
// e.g. "hpc-compute-12" -> "hpc-compute". Names without an index are
// returned unchanged.
func (l *Lookup) NodePrefix(node string) string {
	i := len(node)
	for i > 0 && node[i-1] >= '0' && node[i-1] <= '9' {
		i--
	}
	if i == len(node) || i == 0 || node[i-1] != '-' {
		return node
	}
	return node[:i-1]
}

// NodesetName extracts the nodeset segment from a node name of the form
// {cluster}-{nodeset}-{index}. The second return is false when the name
// does not belong to this cluster or has no index.
func (l *Lookup) NodesetName(node string) (string, bool) {
	prefix := l.NodePrefix(node)
	if prefix == node {
		return "", false
	}
	rest, found := strings.CutPrefix(prefix, l.cfg.ClusterName+"-")
	if !found || rest == "" {
		return "", false
	}
	return rest, true
}

// Nodeset resolves a node name to its conventional nodeset.
func (l *Lookup) Nodeset(node string) (Nodeset, bool) {
	name, ok := l.NodesetName(node)
	if !ok {
		return Nodeset{}, false
	}
	ns, ok := l.cfg.Nodesets[name]
	return ns, ok
}

// AcceleratorNodeset resolves a node name to its accelerator nodeset.
func (l *Lookup) AcceleratorNodeset(node string) (AcceleratorNodeset, bool) {
	name, ok := l.NodesetName(node)
	if !ok {
		return AcceleratorNodeset{}, false
	}
	ns, ok := l.cfg.AcceleratorNodesets[name]
	return ns, ok
}

// IsPowerManaged reports whether the node belongs to a nodeset this cluster
// powers on and off. Unknown nodes are externally managed.
func (l *Lookup) IsPowerManaged(node string) bool {
	name, ok := l.NodesetName(node)
	if !ok {
		return false
	}
	if _, conventional := l.cfg.Nodesets[name]; conventional {
		return true
	}
	_, accel := l.cfg.AcceleratorNodesets[name]
	return accel
}

// NodeIsAccelerator reports whether the node is an accelerator-pod node.
func (l *Lookup) NodeIsAccelerator(node string) bool {
	_, ok := l.AcceleratorNodeset(node)
	return ok
}

// Partition returns the named partition.
func (l *Lookup) Partition(name string) (Partition, bool) {
	p, ok := l.cfg.Partitions[name]
	return p, ok
}

// PartitionIsAccelerator reports whether every nodeset of the partition is
// an accelerator nodeset.
func (l *Lookup) PartitionIsAccelerator(name string) bool {
	p, ok := l.cfg.Partitions[name]
	if !ok || len(p.Nodesets) == 0 {
		return false
	}
	for _, ns := range p.Nodesets {
		if _, accel := l.cfg.AcceleratorNodesets[ns]; !accel {
			return false
		}
	}
	return true
}

// NodeRegion returns the region of the node's nodeset, or "" for unknown
// nodes.
func (l *Lookup) NodeRegion(node string) string {
	ns, ok := l.Nodeset(node)
	if !ok {
		return ""
	}
	return ns.Region
}

// NodesetMap partitions nodes by nodeset name, preserving input order
// within each partition. Nodes that resolve to no nodeset are dropped.
func (l *Lookup) NodesetMap(nodes []string) map[string][]string {
	m := map[string][]string{}
	for _, node := range nodes {
		name, ok := l.NodesetName(node)
		if !ok {
			continue
		}
		m[name] = append(m[name], node)
	}
	return m
}
