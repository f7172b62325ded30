package bootstrap

import (
	"context"
	"fmt"
	"io"
	"subuk/vagrantd/compute"
	"subuk/vagrantd/util"
	"subuk/vagrantd/vagrantfile"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"
)

type nodeListItem struct {
	Id         string `yaml:"id"`
	IpAddress  string `yaml:"ipaddress"`
	Fqdn       string `yaml:"fqdn"`
	Memory     string `yaml:"memory"`
	Flavor     string `yaml:"flavor,omitempty"`
	Status     string `yaml:"status"`
	ProviderId string `yaml:"provider_id,omitempty"`
	Created    string `yaml:"created"`
}

func newNodeListItem(node *compute.Node) nodeListItem {
	return nodeListItem{
		Id:         node.Id,
		IpAddress:  node.IpAddress,
		Fqdn:       node.Fqdn,
		Memory:     humanize.IBytes(node.Memory.Bytes()),
		Flavor:     node.FlavorId,
		Status:     node.Status.String(),
		ProviderId: node.ProviderId,
		Created:    humanize.Time(node.Created),
	}
}

func writeNodes(w io.Writer, nodes []*compute.Node, asYaml bool) error {
	items := []nodeListItem{}
	for _, node := range nodes {
		items = append(items, newNodeListItem(node))
	}
	if asYaml {
		content, err := yaml.Marshal(items)
		if err != nil {
			return util.NewError(err, "cannot marshal nodes")
		}
		_, err = w.Write(content)
		return err
	}
	table := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tIPADDRESS\tMEMORY\tFLAVOR\tSTATUS\tCREATED")
	for _, item := range items {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\n", item.Id, item.IpAddress, item.Memory, item.Flavor, item.Status, item.Created)
	}
	return table.Flush()
}

// Render writes a Vagrantfile for values. A non empty templateFile replaces
// the configured template for this call only.
func (app *App) Render(w io.Writer, templateFile string, values vagrantfile.Values) error {
	var content []byte
	var err error
	if templateFile != "" {
		tmpl, loadErr := vagrantfile.Load(templateFile)
		if loadErr != nil {
			return loadErr
		}
		content, err = tmpl.Render(values)
	} else {
		content, err = app.Compute.VagrantfileRender(values)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}

func (app *App) Up(ctx context.Context, w io.Writer, params compute.NodeCreateParams) error {
	node, err := app.Compute.NodeCreate(ctx, params)
	if err != nil {
		return err
	}
	app.Logger.Info().Str("node", node.Id).Str("ipaddress", node.IpAddress).Msg("node created")
	return writeNodes(w, []*compute.Node{node}, false)
}

func (app *App) Destroy(ctx context.Context, w io.Writer, ids []string) error {
	for _, id := range ids {
		if err := app.Compute.NodeDelete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s destroyed\n", id)
	}
	return nil
}

func (app *App) Status(ctx context.Context, w io.Writer, ids []string) error {
	nodes := []*compute.Node{}
	for _, id := range ids {
		node, err := app.Compute.NodeRefresh(ctx, id)
		if err != nil {
			return err
		}
		nodes = append(nodes, node)
	}
	return writeNodes(w, nodes, false)
}

func (app *App) List(w io.Writer, prefix string, asYaml bool) error {
	nodes, err := app.Compute.NodeList(compute.NodeListOptions{Prefix: prefix})
	if err != nil {
		return err
	}
	return writeNodes(w, nodes, asYaml)
}

func (app *App) Scale(ctx context.Context, w io.Writer, params compute.NodeScaleParams) error {
	nodes, err := app.Compute.NodeScale(ctx, params)
	if err != nil {
		return err
	}
	return writeNodes(w, nodes, false)
}

func (app *App) Flavors(w io.Writer) error {
	flavors, err := app.Compute.FlavorList()
	if err != nil {
		return err
	}
	table := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tMEMORY\tDESCRIPTION")
	for _, flavor := range flavors {
		fmt.Fprintf(table, "%s\t%d\t%s\n", flavor.Id, flavor.Memory.M(), flavor.Description)
	}
	return table.Flush()
}
