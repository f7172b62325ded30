package web

import (
	"net/http"
	"subuk/vagrantd/vagrantfile"
)

type flavorResponse struct {
	Id          string `json:"id"`
	MemoryMiB   uint64 `json:"memory"`
	Description string `json:"description"`
}

func (env *Environ) FlavorList(rw http.ResponseWriter, req *http.Request) {
	flavors, err := env.compute.FlavorList()
	if err != nil {
		env.computeError(rw, req, err, "flavor list failed")
		return
	}
	response := []flavorResponse{}
	for _, flavor := range flavors {
		response = append(response, flavorResponse{flavor.Id, flavor.Memory.M(), flavor.Description})
	}
	env.render.JSON(rw, http.StatusOK, response)
}

type renderRequest struct {
	Id        string `json:"id"`
	IpAddress string `json:"ipaddress"`
	Memory    int    `json:"memory"`
}

// Render returns a Vagrantfile for arbitrary values without creating a node.
func (env *Environ) Render(rw http.ResponseWriter, req *http.Request) {
	form := renderRequest{}
	if !env.decode(rw, req, &form) {
		return
	}
	content, err := env.compute.VagrantfileRender(vagrantfile.Values{
		Id:        form.Id,
		IpAddress: form.IpAddress,
		Memory:    form.Memory,
	})
	if err != nil {
		env.computeError(rw, req, err, "render failed")
		return
	}
	env.render.Text(rw, http.StatusOK, string(content))
}
