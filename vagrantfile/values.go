package vagrantfile

import (
	"errors"
	"regexp"
	"subuk/vagrantd/util"

	"github.com/seancfoley/ipaddress-go/ipaddr"
)

var ErrInvalidValue = errors.New("invalid value")

var hostnameLabel = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Values are substituted verbatim, so they are restricted to forms that are
// safe inside a double quoted ruby string.
type Values struct {
	Id        string
	IpAddress string
	Memory    int
}

func (v Values) Validate() error {
	if !hostnameLabel.MatchString(v.Id) {
		return util.NewError(ErrInvalidValue, "id %q is not a hostname label", v.Id)
	}
	if !IsIPv4(v.IpAddress) {
		return util.NewError(ErrInvalidValue, "ipaddress %q is not a dotted quad", v.IpAddress)
	}
	if v.Memory <= 0 {
		return util.NewError(ErrInvalidValue, "memory %d must be positive", v.Memory)
	}
	return nil
}

// IsIPv4 accepts only the canonical a.b.c.d form.
func IsIPv4(input string) bool {
	addr, err := ipaddr.NewIPAddressString(input).ToAddress()
	if err != nil || addr == nil {
		return false
	}
	// wildcards and ranges (1.2.3.*, 1.2.3.4-5) print back unchanged
	if !addr.IsIPv4() || addr.IsPrefixed() || addr.IsMultiple() {
		return false
	}
	return addr.String() == input
}
