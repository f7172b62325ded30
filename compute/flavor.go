package compute

import "errors"

var ErrFlavorNotFound = errors.New("flavor not found")

type Flavor struct {
	Id          string
	Memory      Size
	Description string
}

// SeedFlavors are the sizes offered when nothing is configured.
func SeedFlavors() []*Flavor {
	return []*Flavor{
		{Id: "vagrant-512", Memory: NewSize(512, SizeUnitM), Description: "512 MiB vagrant node"},
		{Id: "vagrant-1024", Memory: NewSize(1024, SizeUnitM), Description: "1 GiB vagrant node"},
		{Id: "vagrant-2048", Memory: NewSize(2048, SizeUnitM), Description: "2 GiB vagrant node"},
	}
}

type FlavorService struct {
	flavors  []*Flavor
	fallback string
}

func NewFlavorService(flavors []*Flavor, fallback string) *FlavorService {
	if len(flavors) == 0 {
		flavors = SeedFlavors()
	}
	if fallback == "" {
		fallback = flavors[0].Id
	}
	return &FlavorService{flavors: flavors, fallback: fallback}
}

func (service *FlavorService) List() ([]*Flavor, error) {
	return service.flavors, nil
}

func (service *FlavorService) Get(id string) (*Flavor, error) {
	for _, flavor := range service.flavors {
		if flavor.Id == id {
			return flavor, nil
		}
	}
	return nil, ErrFlavorNotFound
}

func (service *FlavorService) Default() (*Flavor, error) {
	return service.Get(service.fallback)
}
