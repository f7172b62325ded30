package web

import (
	"net/http"
	"subuk/vagrantd/compute"
	"time"

	"github.com/gorilla/mux"
)

type nodeResponse struct {
	Id         string    `json:"id"`
	Uuid       string    `json:"uuid"`
	Hostname   string    `json:"hostname"`
	Fqdn       string    `json:"fqdn"`
	IpAddress  string    `json:"ipaddress"`
	MemoryMiB  uint64    `json:"memory"`
	FlavorId   string    `json:"flavor"`
	Status     string    `json:"status"`
	ProviderId string    `json:"provider_id"`
	Created    time.Time `json:"created"`
}

func newNodeResponse(node *compute.Node) nodeResponse {
	return nodeResponse{
		Id:         node.Id,
		Uuid:       node.Uuid,
		Hostname:   node.Hostname,
		Fqdn:       node.Fqdn,
		IpAddress:  node.IpAddress,
		MemoryMiB:  node.Memory.M(),
		FlavorId:   node.FlavorId,
		Status:     node.Status.String(),
		ProviderId: node.ProviderId,
		Created:    node.Created,
	}
}

func newNodeListResponse(nodes []*compute.Node) []nodeResponse {
	response := []nodeResponse{}
	for _, node := range nodes {
		response = append(response, newNodeResponse(node))
	}
	return response
}

func (env *Environ) NodeList(rw http.ResponseWriter, req *http.Request) {
	nodes, err := env.compute.NodeList(compute.NodeListOptions{Prefix: req.URL.Query().Get("prefix")})
	if err != nil {
		env.computeError(rw, req, err, "node list failed")
		return
	}
	env.render.JSON(rw, http.StatusOK, newNodeListResponse(nodes))
}

func (env *Environ) NodeDetail(rw http.ResponseWriter, req *http.Request) {
	node, err := env.compute.NodeGet(mux.Vars(req)["id"])
	if err != nil {
		env.computeError(rw, req, err, "node get failed")
		return
	}
	env.render.JSON(rw, http.StatusOK, newNodeResponse(node))
}

type nodeCreateRequest struct {
	Id        string `json:"id"`
	Prefix    string `json:"prefix"`
	FlavorId  string `json:"flavor"`
	Memory    string `json:"memory"`
	IpAddress string `json:"ipaddress"`
}

func (env *Environ) NodeCreate(rw http.ResponseWriter, req *http.Request) {
	form := nodeCreateRequest{}
	if !env.decode(rw, req, &form) {
		return
	}
	params := compute.NodeCreateParams{
		Id:        form.Id,
		Prefix:    form.Prefix,
		FlavorId:  form.FlavorId,
		IpAddress: form.IpAddress,
	}
	if form.Memory != "" {
		memory, err := compute.ParseSize(form.Memory)
		if err != nil {
			env.error(rw, req, err, "invalid memory", http.StatusBadRequest)
			return
		}
		params.Memory = memory
	}
	node, err := env.compute.NodeCreate(req.Context(), params)
	if err != nil {
		env.computeError(rw, req, err, "node create failed")
		return
	}
	env.logger.Info().Str("node", node.Id).Str("ipaddress", node.IpAddress).Msg("node created")
	rw.Header().Set("Location", env.url("node-detail", "id", node.Id).Path)
	env.render.JSON(rw, http.StatusCreated, newNodeResponse(node))
}

func (env *Environ) NodeDelete(rw http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if err := env.compute.NodeDelete(req.Context(), id); err != nil {
		env.computeError(rw, req, err, "node delete failed")
		return
	}
	env.logger.Info().Str("node", id).Msg("node destroyed")
	rw.WriteHeader(http.StatusNoContent)
}

func (env *Environ) NodeRefresh(rw http.ResponseWriter, req *http.Request) {
	node, err := env.compute.NodeRefresh(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		env.computeError(rw, req, err, "node refresh failed")
		return
	}
	env.render.JSON(rw, http.StatusOK, newNodeResponse(node))
}

func (env *Environ) NodeVagrantfile(rw http.ResponseWriter, req *http.Request) {
	content, err := env.compute.NodeVagrantfile(mux.Vars(req)["id"])
	if err != nil {
		env.computeError(rw, req, err, "vagrantfile render failed")
		return
	}
	env.render.Text(rw, http.StatusOK, string(content))
}

type nodeScaleRequest struct {
	Prefix   string `json:"prefix"`
	FlavorId string `json:"flavor"`
	Count    int    `json:"count"`
}

func (env *Environ) NodeScale(rw http.ResponseWriter, req *http.Request) {
	form := nodeScaleRequest{}
	if !env.decode(rw, req, &form) {
		return
	}
	nodes, err := env.compute.NodeScale(req.Context(), compute.NodeScaleParams{
		Prefix:   form.Prefix,
		FlavorId: form.FlavorId,
		Count:    form.Count,
	})
	if err != nil {
		env.computeError(rw, req, err, "scale failed")
		return
	}
	env.render.JSON(rw, http.StatusOK, newNodeListResponse(nodes))
}
