package resume

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hpcops/resumectl/internal/config"
	"github.com/hpcops/resumectl/internal/platform/tpu"
	"github.com/hpcops/resumectl/internal/util/async"
)

// AcceleratorProvisioner powers on accelerator-pod chunks through the
// accelerator API. It runs strictly after conventional provisioning so the
// slower pod path never delays conventional node availability. Failures are
// logged, not quarantined: the outer resume polling retries them.
type AcceleratorProvisioner struct {
	lkp *config.Lookup
	log logrus.FieldLogger

	// newClient is swappable for tests.
	newClient func(ctx context.Context, spec tpu.NodesetSpec) (tpu.Client, error)

	// one client per node prefix, reused across chunks
	clients map[string]tpu.Client
}

// NewAcceleratorProvisioner creates a provisioner that builds one real TPU
// client per accelerator nodeset.
func NewAcceleratorProvisioner(lkp *config.Lookup, log logrus.FieldLogger) *AcceleratorProvisioner {
	return &AcceleratorProvisioner{
		lkp: lkp,
		log: log,
		newClient: func(ctx context.Context, spec tpu.NodesetSpec) (tpu.Client, error) {
			return tpu.NewRealClient(ctx, spec)
		},
		clients: map[string]tpu.Client{},
	}
}

// Provision creates or starts all accelerator chunks concurrently. Errors
// never propagate; each failed pod is logged and the rest proceed.
func (p *AcceleratorProvisioner) Provision(ctx context.Context, chunks []Chunk) {
	var tasks []async.Task
	for _, chunk := range chunks {
		chunk := chunk
		if len(chunk.Nodes) == 0 {
			continue
		}
		client, nodeset, err := p.clientFor(ctx, chunk)
		if err != nil {
			p.log.WithError(err).Errorf("cannot create accelerator client for %s", chunk.Prefix)
			continue
		}
		tasks = append(tasks, async.Task{
			Name: chunk.GroupName(),
			Func: func(ctx context.Context) error {
				p.provisionChunk(ctx, client, nodeset, chunk)
				return nil
			},
		})
	}
	// Tasks swallow their own errors; RunParallel is only a barrier here.
	_ = async.RunParallel(ctx, tasks)
}

func (p *AcceleratorProvisioner) clientFor(ctx context.Context, chunk Chunk) (tpu.Client, config.AcceleratorNodeset, error) {
	nodeset, ok := p.lkp.AcceleratorNodeset(chunk.Nodes[0])
	if !ok {
		return nil, config.AcceleratorNodeset{}, fmt.Errorf("node %s has no accelerator nodeset", chunk.Nodes[0])
	}
	if client, ok := p.clients[chunk.Prefix]; ok {
		return client, nodeset, nil
	}
	client, err := p.newClient(ctx, tpu.NodesetSpec{
		Project:         p.lkp.Config().Project,
		Zone:            nodeset.Zone,
		AcceleratorType: nodeset.AcceleratorType,
		RuntimeVersion:  nodeset.RuntimeVersion,
	})
	if err != nil {
		return nil, config.AcceleratorNodeset{}, err
	}
	p.clients[chunk.Prefix] = client
	return client, nodeset, nil
}

func (p *AcceleratorProvisioner) provisionChunk(ctx context.Context, client tpu.Client, nodeset config.AcceleratorNodeset, chunk Chunk) {
	if len(chunk.Nodes) > 1 {
		// Multi-VM pods are always created fresh.
		name := chunk.Nodes[0]
		p.log.Debugf("creating multi-vm pod of type %s runtime %s in zone %s with name %s",
			nodeset.AcceleratorType, nodeset.RuntimeVersion, nodeset.Zone, name)
		if err := client.CreatePod(ctx, name); err != nil {
			p.log.WithError(err).Errorf("error creating pod %s", name)
		}
		return
	}

	name := chunk.Nodes[0]
	p.log.Debugf("creating pod of type %s runtime %s in zone %s with name %s",
		nodeset.AcceleratorType, nodeset.RuntimeVersion, nodeset.Zone, name)

	pod, err := client.GetPod(ctx, name)
	if err != nil {
		p.log.WithError(err).Errorf("error looking up pod %s", name)
		return
	}
	switch {
	case pod == nil:
		if err := client.CreatePod(ctx, name); err != nil {
			p.log.WithError(err).Errorf("error creating pod %s", name)
		}
	case nodeset.PreservePods:
		if err := client.StartPod(ctx, name); err != nil {
			p.log.WithError(err).Errorf("error starting pod %s", name)
		}
	default:
		p.log.Infof("pod %s is already created, but will not start it because nodeset does not preserve pods", name)
	}
}
