package vagrantfile

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"
	"subuk/vagrantd/util"
)

const (
	PlaceholderId        = "id"
	PlaceholderIpAddress = "ipaddress"
	PlaceholderMemory    = "memory"
)

var RequiredPlaceholders = []string{PlaceholderId, PlaceholderIpAddress, PlaceholderMemory}

var ErrMissingPlaceholder = errors.New("missing placeholder")
var ErrUnknownPlaceholder = errors.New("unknown placeholder")
var ErrInvalidPlaceholder = errors.New("invalid placeholder")

// DefaultSource boots a node from the deis-node box on a private network and
// announces <id>.local through avahi.
const DefaultSource = `Vagrant.configure("2") do |config|
  config.vm.box = "deis-node"

  # The url from where the 'config.vm.box' box will be fetched if it
  # doesn't already exist on the user's system.
  config.vm.box_url = "https://s3-us-west-2.amazonaws.com/opdemand/deis-node.box"

  # Avahi-daemon will broadcast the node's address as $id.local
  config.vm.host_name = "$id"

  # IP will be associated to '$id.local' using avahi-daemon
  config.vm.network :private_network, ip: "$ipaddress"

  config.vm.provider :virtualbox do |vb|
    vb.customize ["modifyvm", :id, "--memory", "$memory"]
  end

  # Enable [hostname].local autodiscovery between VMs
  config.vm.provision :shell, inline: <<-SCRIPT
    # Avahi-daemon broadcasts the machine's hostname to local DNS.
    # So $id.local in this case
    sudo service avahi-daemon restart
  SCRIPT
end
`

type segment struct {
	literal     string
	placeholder string
}

type Template struct {
	segments []segment
}

func Default() *Template {
	tmpl, err := Parse(DefaultSource)
	if err != nil {
		panic(util.NewError(err, "builtin vagrantfile template is broken"))
	}
	return tmpl
}

func Load(filename string) (*Template, error) {
	content, err := ioutil.ReadFile(util.ExpandHomeDir(filename))
	if err != nil {
		return nil, util.NewError(err, "cannot read vagrantfile template")
	}
	tmpl, err := Parse(string(content))
	if err != nil {
		return nil, util.NewError(err, "cannot parse vagrantfile template %s", filename)
	}
	return tmpl, nil
}

// Parse accepts $name and ${name} placeholders, $$ stands for a literal dollar.
func Parse(source string) (*Template, error) {
	tmpl := &Template{}
	literal := bytes.Buffer{}
	line := 1
	for i := 0; i < len(source); i++ {
		char := source[i]
		if char == '\n' {
			line++
		}
		if char != '$' {
			literal.WriteByte(char)
			continue
		}
		if i+1 >= len(source) {
			return nil, util.NewError(ErrInvalidPlaceholder, "dangling '$' on line %d", line)
		}
		next := source[i+1]
		name := ""
		switch {
		case next == '$':
			literal.WriteByte('$')
			i++
			continue
		case next == '{':
			end := strings.IndexByte(source[i+2:], '}')
			if end < 0 {
				return nil, util.NewError(ErrInvalidPlaceholder, "unterminated '${' on line %d", line)
			}
			name = source[i+2 : i+2+end]
			if !isIdentifier(name) {
				return nil, util.NewError(ErrInvalidPlaceholder, "bad name %q on line %d", name, line)
			}
			i += 2 + end
		case isIdentifierStart(next):
			end := i + 1
			for end < len(source) && isIdentifierChar(source[end]) {
				end++
			}
			name = source[i+1 : end]
			i = end - 1
		default:
			return nil, util.NewError(ErrInvalidPlaceholder, "unexpected %q after '$' on line %d", next, line)
		}
		if !util.ArrayContainsString(RequiredPlaceholders, name) {
			return nil, util.NewError(ErrUnknownPlaceholder, "$%s on line %d", name, line)
		}
		if literal.Len() > 0 {
			tmpl.segments = append(tmpl.segments, segment{literal: literal.String()})
			literal.Reset()
		}
		tmpl.segments = append(tmpl.segments, segment{placeholder: name})
	}
	if literal.Len() > 0 {
		tmpl.segments = append(tmpl.segments, segment{literal: literal.String()})
	}

	used := tmpl.Placeholders()
	for _, name := range RequiredPlaceholders {
		if !util.ArrayContainsString(used, name) {
			return nil, util.NewError(ErrMissingPlaceholder, "$%s", name)
		}
	}
	return tmpl, nil
}

// Placeholders returns placeholder names in order of first use.
func (tmpl *Template) Placeholders() []string {
	names := []string{}
	for _, seg := range tmpl.segments {
		if seg.placeholder != "" && !util.ArrayContainsString(names, seg.placeholder) {
			names = append(names, seg.placeholder)
		}
	}
	return names
}

func (tmpl *Template) Render(values Values) ([]byte, error) {
	if err := values.Validate(); err != nil {
		return nil, err
	}
	substitutions := map[string]string{
		PlaceholderId:        values.Id,
		PlaceholderIpAddress: values.IpAddress,
		PlaceholderMemory:    strconv.Itoa(values.Memory),
	}
	out := bytes.Buffer{}
	for _, seg := range tmpl.segments {
		if seg.placeholder == "" {
			out.WriteString(seg.literal)
			continue
		}
		value, ok := substitutions[seg.placeholder]
		if !ok {
			return nil, fmt.Errorf("no value for $%s", seg.placeholder)
		}
		out.WriteString(value)
	}
	return out.Bytes(), nil
}

func isIdentifierStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentifierChar(c byte) bool {
	return isIdentifierStart(c) || (c >= '0' && c <= '9')
}

func isIdentifier(name string) bool {
	if name == "" || !isIdentifierStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isIdentifierChar(name[i]) {
			return false
		}
	}
	return true
}
