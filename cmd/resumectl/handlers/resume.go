// Package handlers implements the business logic for CLI commands.
//
// Handlers are called by command definitions in the commands package and
// can be tested independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hpcops/resumectl/internal/config"
	"github.com/hpcops/resumectl/internal/hostlist"
	"github.com/hpcops/resumectl/internal/platform/gcp"
	"github.com/hpcops/resumectl/internal/platform/slurm"
	"github.com/hpcops/resumectl/internal/resume"
)

// Options carry the CLI arguments into the handler.
type Options struct {
	ConfigPath string
	LogLevel   string
	NodeList   string
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// newComputeClient creates the provider compute client.
	newComputeClient = func(ctx context.Context, project string) (gcp.Client, error) {
		return gcp.NewRealClient(ctx, project)
	}

	// loadConfigFile loads the cluster configuration.
	loadConfigFile = config.LoadFile

	// readAllocation loads the scheduler's allocation side channel.
	readAllocation = resume.ReadAllocation
)

// Resume is the power-up hook: it expands the host range, drops nodes this
// cluster does not power-manage and hands the rest to the provisioning
// pipeline.
func Resume(ctx context.Context, opts Options) error {
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
	}
	logrus.SetLevel(level)
	log := logrus.StandardLogger()

	cfg, err := loadConfigFile(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lkp := config.NewLookup(cfg)

	log.Debugf("resume program called with %s", opts.NodeList)
	requested, err := hostlist.Expand(opts.NodeList)
	if err != nil {
		return fmt.Errorf("invalid node list %q: %w", opts.NodeList, err)
	}

	nodes := resume.NewClassifier(lkp, log).PowerManaged(requested)
	if len(nodes) == 0 {
		log.Info("no nodes to resume")
		return nil
	}

	alloc := readAllocation(log)

	client, err := newComputeClient(ctx, cfg.Project)
	if err != nil {
		return fmt.Errorf("failed to create compute client: %w", err)
	}
	scontrol := slurm.NewCLI(cfg.ScontrolPath)

	placement := resume.NewPlacementGroupManager(lkp, client, log)
	grouper := resume.NewGrouper(lkp, placement, log)
	builder := resume.NewRequestBuilder(lkp, scontrol, log)
	notifier := resume.NewNotifier(scontrol, log)
	accel := resume.NewAcceleratorProvisioner(lkp, log)
	executor := resume.NewExecutor(lkp, client, builder, grouper, notifier, accel, log)

	log.Infof("resume %s", hostlist.Compress(nodes))
	executor.Resume(ctx, nodes, alloc)
	return nil
}
