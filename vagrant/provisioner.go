package vagrant

import (
	"context"
	"fmt"
	"path"
	"strings"
	"subuk/vagrantd/compute"
	"subuk/vagrantd/util"

	"github.com/rs/zerolog"
)

const VagrantfileName = "Vagrantfile"

type ProvisionerConfig struct {
	Binary   string
	Workdir  string
	Provider string
}

// Provisioner keeps one vagrant project directory per node under Workdir.
type Provisioner struct {
	exec   Executor
	cfg    ProvisionerConfig
	logger zerolog.Logger
}

func NewProvisioner(exec Executor, cfg ProvisionerConfig, logger zerolog.Logger) *Provisioner {
	if cfg.Binary == "" {
		cfg.Binary = "vagrant"
	}
	if cfg.Provider == "" {
		cfg.Provider = "virtualbox"
	}
	return &Provisioner{exec: exec, cfg: cfg, logger: logger}
}

func (p *Provisioner) NodeDir(node *compute.Node) string {
	return path.Join(p.cfg.Workdir, node.Id)
}

func (p *Provisioner) Up(ctx context.Context, node *compute.Node, vagrantfile []byte) (string, error) {
	dir := p.NodeDir(node)
	if err := p.exec.WriteFile(ctx, path.Join(dir, VagrantfileName), vagrantfile); err != nil {
		return "", util.NewError(err, "cannot write vagrantfile")
	}
	logger := p.logger.With().Str("node", node.Id).Str("dir", dir).Logger()
	logger.Info().Str("ip", node.IpAddress).Uint64("memory_mib", node.Memory.M()).Msg("bringing node up")
	if _, err := p.exec.Run(ctx, dir, p.cfg.Binary, "up", "--provider", p.cfg.Provider, "--machine-readable"); err != nil {
		return "", err
	}
	out, err := p.exec.ReadFile(ctx, path.Join(dir, ".vagrant", "machines", "default", p.cfg.Provider, "id"))
	if err != nil {
		return "", util.NewError(err, "vagrant up left no machine id")
	}
	providerId := strings.TrimSpace(string(out))
	if providerId == "" {
		return "", fmt.Errorf("vagrant up left an empty machine id")
	}
	logger.Info().Str("provider_id", providerId).Msg("node is up")
	return providerId, nil
}

func (p *Provisioner) Destroy(ctx context.Context, node *compute.Node) error {
	dir := p.NodeDir(node)
	exists, err := p.exec.Exists(ctx, path.Join(dir, VagrantfileName))
	if err != nil {
		return util.NewError(err, "cannot check node directory")
	}
	if !exists {
		p.logger.Warn().Str("node", node.Id).Msg("no vagrant project, nothing to destroy")
		return nil
	}
	p.logger.Info().Str("node", node.Id).Msg("destroying node")
	if _, err := p.exec.Run(ctx, dir, p.cfg.Binary, "destroy", "--force", "--machine-readable"); err != nil {
		return err
	}
	if err := p.exec.RemoveAll(ctx, dir); err != nil {
		return util.NewError(err, "cannot remove node directory")
	}
	return nil
}

func (p *Provisioner) Status(ctx context.Context, node *compute.Node) (compute.NodeStatus, error) {
	dir := p.NodeDir(node)
	exists, err := p.exec.Exists(ctx, path.Join(dir, VagrantfileName))
	if err != nil {
		return compute.NodeStatusUnknown, util.NewError(err, "cannot check node directory")
	}
	if !exists {
		return compute.NodeStatusNotCreated, nil
	}
	out, err := p.exec.Run(ctx, dir, p.cfg.Binary, "status", "--machine-readable")
	if err != nil {
		return compute.NodeStatusUnknown, err
	}
	records, err := ParseMachineReadable(out)
	if err != nil {
		return compute.NodeStatusUnknown, util.NewError(err, "cannot parse vagrant status")
	}
	data, found := Find(records, "state")
	if !found || len(data) == 0 {
		return compute.NodeStatusUnknown, nil
	}
	return compute.NewNodeStatus(data[0]), nil
}
