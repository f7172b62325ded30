package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"subuk/vagrantd/bootstrap"
	"subuk/vagrantd/compute"
	"subuk/vagrantd/util"
	"subuk/vagrantd/vagrantfile"
	"syscall"

	"github.com/akamensky/argparse"
)

func main() {
	os.Exit(run(os.Args))
}

// flagGiven reports whether args name the option explicitly, in any of the
// forms argparse accepts.
func flagGiven(args []string, short, long string) bool {
	for _, arg := range args[1:] {
		if arg == "--" {
			return false
		}
		switch {
		case arg == "-"+short, arg == "--"+long:
			return true
		case strings.HasPrefix(arg, "-"+short+"="), strings.HasPrefix(arg, "--"+long+"="):
			return true
		}
	}
	return false
}

func run(args []string) int {
	parser := argparse.NewParser("vagrantd", "Vagrant node manager")
	configFilename := parser.String("c", "config", &argparse.Options{
		Default: util.GetenvDefault("VAGRANTD_CONFIG", "vagrantd.conf"),
		Help:    "Configuration file path",
	})

	renderCmd := parser.NewCommand("render", "Print a Vagrantfile for the given values")
	renderId := renderCmd.String("i", "id", &argparse.Options{Required: true, Help: "Node hostname"})
	renderIp := renderCmd.String("a", "ipaddress", &argparse.Options{Required: true, Help: "Private network address"})
	renderMemory := renderCmd.Int("m", "memory", &argparse.Options{Required: true, Help: "Memory in MiB"})
	renderTemplate := renderCmd.String("t", "template", &argparse.Options{Help: "Template file instead of the configured one"})

	upCmd := parser.NewCommand("up", "Create and provision a node")
	upId := upCmd.String("i", "id", &argparse.Options{Help: "Node id, generated when empty"})
	upPrefix := upCmd.String("p", "prefix", &argparse.Options{Help: "Number the node as <prefix>-<n>"})
	upFlavor := upCmd.String("f", "flavor", &argparse.Options{Help: "Flavor id"})
	upMemory := upCmd.String("m", "memory", &argparse.Options{Help: "Memory, overrides flavor (512, 2GiB)"})
	upIp := upCmd.String("a", "ipaddress", &argparse.Options{Help: "Address, allocated from the pool when empty"})

	destroyCmd := parser.NewCommand("destroy", "Destroy nodes")
	destroyIds := destroyCmd.StringList("i", "id", &argparse.Options{Required: true, Help: "Node id"})

	statusCmd := parser.NewCommand("status", "Refresh node status from vagrant")
	statusIds := statusCmd.StringList("i", "id", &argparse.Options{Required: true, Help: "Node id"})

	listCmd := parser.NewCommand("list", "List nodes")
	listPrefix := listCmd.String("p", "prefix", &argparse.Options{Help: "Only nodes of this prefix"})
	listYaml := listCmd.Flag("y", "yaml", &argparse.Options{Help: "YAML output"})

	scaleCmd := parser.NewCommand("scale", "Create or destroy numbered nodes until count exist")
	scalePrefix := scaleCmd.String("p", "prefix", &argparse.Options{Required: true, Help: "Node prefix"})
	scaleFlavor := scaleCmd.String("f", "flavor", &argparse.Options{Help: "Flavor for new nodes"})
	scaleCount := scaleCmd.Int("n", "count", &argparse.Options{Required: true, Help: "Desired number of nodes"})

	flavorsCmd := parser.NewCommand("flavors", "List flavors")
	webCmd := parser.NewCommand("web", "Run http api server")
	genpwCmd := parser.NewCommand("genpw", "Generate password hash for config")

	if err := parser.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		return 1
	}

	if genpwCmd.Happened() {
		bootstrap.GenPassword()
		return 0
	}

	_, configSet := os.LookupEnv("VAGRANTD_CONFIG")
	configSet = configSet || flagGiven(args, "c", "config")
	app := bootstrap.Load(*configFilename, configSet || webCmd.Happened())
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case renderCmd.Happened():
		err = app.Render(os.Stdout, *renderTemplate, vagrantfile.Values{
			Id:        *renderId,
			IpAddress: *renderIp,
			Memory:    *renderMemory,
		})
	case upCmd.Happened():
		params := compute.NodeCreateParams{
			Id:        *upId,
			Prefix:    *upPrefix,
			FlavorId:  *upFlavor,
			IpAddress: *upIp,
		}
		if *upMemory != "" {
			params.Memory, err = compute.ParseSize(*upMemory)
			if err != nil {
				err = util.NewError(err, "invalid memory")
				break
			}
		}
		err = app.Up(ctx, os.Stdout, params)
	case destroyCmd.Happened():
		err = app.Destroy(ctx, os.Stdout, *destroyIds)
	case statusCmd.Happened():
		err = app.Status(ctx, os.Stdout, *statusIds)
	case listCmd.Happened():
		err = app.List(os.Stdout, *listPrefix, *listYaml)
	case scaleCmd.Happened():
		err = app.Scale(ctx, os.Stdout, compute.NodeScaleParams{
			Prefix:   *scalePrefix,
			FlavorId: *scaleFlavor,
			Count:    *scaleCount,
		})
	case flavorsCmd.Happened():
		err = app.Flavors(os.Stdout)
	case webCmd.Happened():
		err = app.Web()
	}
	if err != nil {
		app.Logger.Error().Err(err).Msg("command failed")
		return 1
	}
	return 0
}
