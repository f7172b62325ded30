package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"subuk/vagrantd/compute"
	"subuk/vagrantd/util"

	"github.com/hashicorp/hcl"
	"github.com/imdario/mergo"
)

type UserWebConfig struct {
	Id             string `hcl:",key"`
	FullName       string `hcl:"full_name"`
	Email          string `hcl:"email"`
	HashedPassword string `hcl:"hashed_password"`
}

type WebConfig struct {
	Listen string          `hcl:"listen"`
	Debug  bool            `hcl:"debug"`
	Users  []UserWebConfig `hcl:"user"`
}

type SubscribeConfig struct {
	Event     string `hcl:",key"`
	Script    string `hcl:"script"`
	Mandatory bool   `hcl:"mandatory"`
}

type FlavorConfig struct {
	Id          string `hcl:",key"`
	Memory      string `hcl:"memory"`
	Description string `hcl:"description"`
}

type VagrantConfig struct {
	Binary   string   `hcl:"binary"`
	Workdir  string   `hcl:"workdir"`
	Provider string   `hcl:"provider"`
	Template string   `hcl:"template"`
	Env      []string `hcl:"env"`
}

type NetworkConfig struct {
	Cidr    string `hcl:"cidr"`
	Gateway string `hcl:"gateway"`
	First   int    `hcl:"first"`
}

// SSHConfig is optional: when Address is set vagrant runs on that host
// instead of locally.
type SSHConfig struct {
	Address        string `hcl:"address"`
	User           string `hcl:"user"`
	KeyFile        string `hcl:"key_file"`
	KnownHostsFile string `hcl:"known_hosts_file"`
	TimeoutSeconds int    `hcl:"timeout"`
}

type Config struct {
	LogLevel           string            `hcl:"log_level"`
	StateFile          string            `hcl:"state_file"`
	Parallelism        int               `hcl:"parallelism"`
	HookTimeoutSeconds int               `hcl:"hook_timeout"`
	DefaultFlavor      string            `hcl:"default_flavor"`
	Flavors            []FlavorConfig    `hcl:"flavor"`
	Vagrant            VagrantConfig     `hcl:"vagrant"`
	Network            NetworkConfig     `hcl:"network"`
	SSH                SSHConfig         `hcl:"ssh"`
	Web                WebConfig         `hcl:"web"`
	Subscribes         []SubscribeConfig `hcl:"subscribe"`
}

func Default() *Config {
	return &Config{
		LogLevel:           "info",
		StateFile:          "~/.vagrantd/nodes.json",
		Parallelism:        4,
		HookTimeoutSeconds: 300,
		Vagrant: VagrantConfig{
			Binary:   "vagrant",
			Workdir:  "~/.vagrantd/nodes",
			Provider: "virtualbox",
		},
		Network: NetworkConfig{
			Cidr:  "172.17.8.0/24",
			First: 101,
		},
		SSH: SSHConfig{
			User:           "vagrant",
			KeyFile:        "~/.ssh/id_rsa",
			TimeoutSeconds: 10,
		},
		Web: WebConfig{
			Listen: ":8080",
			Debug:  false,
		},
	}
}

// Load parses filename, a missing file yields the defaults unless required.
func Load(filename string, required bool) (*Config, error) {
	if !required {
		if _, err := os.Stat(util.ExpandHomeDir(filename)); errors.Is(err, os.ErrNotExist) {
			config := Default()
			return config, config.validate()
		}
	}
	return Parse(filename)
}

func Parse(filename string) (*Config, error) {
	content, err := ioutil.ReadFile(util.ExpandHomeDir(filename))
	if err != nil {
		return nil, util.NewError(err, "cannot read configuration file")
	}
	return ParseBytes(content)
}

func ParseBytes(content []byte) (*Config, error) {
	config := &Config{}
	if err := hcl.Unmarshal(content, config); err != nil {
		return nil, util.NewError(err, "invalid configuration format")
	}
	if err := mergo.Merge(config, Default()); err != nil {
		return nil, util.NewError(err, "cannot apply default configuration value")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (config *Config) validate() error {
	flavorIds := map[string]struct{}{}
	for _, flavor := range config.Flavors {
		if _, exists := flavorIds[flavor.Id]; exists {
			return fmt.Errorf("duplicate flavor '%s'", flavor.Id)
		}
		flavorIds[flavor.Id] = struct{}{}
		if _, err := compute.ParseSize(flavor.Memory); err != nil {
			return util.NewError(err, "invalid memory for flavor '%s'", flavor.Id)
		}
	}
	if config.DefaultFlavor != "" {
		found := false
		for _, flavor := range config.ComputeFlavors() {
			if flavor.Id == config.DefaultFlavor {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("default flavor '%s' is not defined", config.DefaultFlavor)
		}
	}
	userIds := map[string]struct{}{}
	for _, user := range config.Web.Users {
		if _, exists := userIds[user.Id]; exists {
			return fmt.Errorf("duplicate user '%s'", user.Id)
		}
		userIds[user.Id] = struct{}{}
		if user.HashedPassword == "" {
			return fmt.Errorf("no hashed_password for user '%s'", user.Id)
		}
	}
	for _, sub := range config.Subscribes {
		if sub.Script == "" {
			return fmt.Errorf("no script for subscription '%s'", sub.Event)
		}
	}
	if config.Parallelism < 1 {
		return fmt.Errorf("parallelism must be positive")
	}
	return nil
}

// ComputeFlavors returns configured flavors or the seeded ones.
func (config *Config) ComputeFlavors() []*compute.Flavor {
	if len(config.Flavors) == 0 {
		return compute.SeedFlavors()
	}
	flavors := []*compute.Flavor{}
	for _, flavor := range config.Flavors {
		memory, _ := compute.ParseSize(flavor.Memory)
		flavors = append(flavors, &compute.Flavor{
			Id:          flavor.Id,
			Memory:      memory,
			Description: flavor.Description,
		})
	}
	return flavors
}

func (config *Config) Remote() bool {
	return config.SSH.Address != ""
}
