package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"
	"subuk/vagrantd/compute"
	"subuk/vagrantd/config"
	"subuk/vagrantd/util"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/unrolled/render"
	"golang.org/x/crypto/bcrypt"
)

var AppVersion string

const (
	HeaderUser = "X-Vagrantd-User"
	HeaderPass = "X-Vagrantd-Pass"
)

type User struct {
	Id       string
	Email    string
	FullName string
}

type Environ struct {
	render  *render.Render
	logger  zerolog.Logger
	router  *mux.Router
	compute *compute.Service
	cfg     *config.WebConfig
}

func New(cfg *config.Config, logger zerolog.Logger, service *compute.Service) http.Handler {
	env := &Environ{cfg: &cfg.Web}
	router := mux.NewRouter()
	env.render = render.New(render.Options{
		IsDevelopment: cfg.Web.Debug,
		IndentJSON:    true,
	})
	env.logger = logger
	env.router = router
	env.compute = service

	router.HandleFunc("/", env.Index).Name("index")

	router.HandleFunc("/flavors/", env.authenticated(env.FlavorList)).Methods("GET").Name("flavor-list")

	router.HandleFunc("/nodes/", env.authenticated(env.NodeList)).Methods("GET").Name("node-list")
	router.HandleFunc("/nodes/", env.authenticated(env.NodeCreate)).Methods("POST").Name("node-create")
	router.HandleFunc("/nodes/{id}/", env.authenticated(env.NodeDetail)).Methods("GET").Name("node-detail")
	router.HandleFunc("/nodes/{id}/", env.authenticated(env.NodeDelete)).Methods("DELETE").Name("node-delete")
	router.HandleFunc("/nodes/{id}/refresh/", env.authenticated(env.NodeRefresh)).Methods("POST").Name("node-refresh")
	router.HandleFunc("/nodes/{id}/vagrantfile/", env.authenticated(env.NodeVagrantfile)).Methods("GET").Name("node-vagrantfile")

	router.HandleFunc("/scale/", env.authenticated(env.NodeScale)).Methods("POST").Name("node-scale")
	router.HandleFunc("/render/", env.authenticated(env.Render)).Methods("POST").Name("render")

	return env
}

type errorResponse struct {
	Error string `json:"error"`
}

func (env *Environ) error(rw http.ResponseWriter, req *http.Request, err error, message string, status int) {
	if err != nil {
		env.logger.Warn().Int("status", status).Str("path", req.URL.Path).Err(err).Msg("request error occured")
		message = message + ": " + err.Error()
	}
	env.render.JSON(rw, status, errorResponse{message})
}

// computeError picks the response status from the domain error kind.
func (env *Environ) computeError(rw http.ResponseWriter, req *http.Request, err error, message string) {
	switch {
	default:
		env.error(rw, req, err, message, http.StatusInternalServerError)
	case compute.IsNotFound(err):
		env.error(rw, req, err, message, http.StatusNotFound)
	case compute.IsConflict(err), compute.IsInvalid(err):
		env.error(rw, req, err, message, http.StatusBadRequest)
	}
}

func (env *Environ) decode(rw http.ResponseWriter, req *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		env.error(rw, req, err, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (env *Environ) url(name string, params ...string) *neturl.URL {
	route := env.router.Get(name)
	if route == nil {
		panic(fmt.Errorf("route named %s not found", name))
	}
	for i := 0; i < len(params); i++ {
		params[i] = strings.Replace(params[i], "/", "%2F", -1)
	}
	url, err := route.URL(params...)
	if err != nil {
		panic(util.NewError(err, "resolving failed with params %s", params))
	}
	return url
}

func (env *Environ) authenticated(handler http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		user := env.checkPassword(req.Header.Get(HeaderUser), req.Header.Get(HeaderPass))
		if user == nil {
			env.error(rw, req, nil, "authentication failed", http.StatusUnauthorized)
			return
		}
		handler(rw, req)
	}
}

func (env *Environ) checkPassword(userId string, password string) *User {
	if userId == "" {
		return nil
	}
	for _, user := range env.cfg.Users {
		if user.Id != userId {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
			env.logger.Warn().Err(err).Msg("authentication failure")
			return nil
		}
		return &User{
			Id:       userId,
			Email:    user.Email,
			FullName: user.FullName,
		}
	}
	env.logger.Warn().Str("id", userId).Msg("user not found")
	return nil
}

func (env *Environ) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	start := time.Now()
	env.router.ServeHTTP(rw, req)
	env.logger.Debug().Str("method", req.Method).Str("path", req.URL.Path).Dur("latency", time.Since(start)).Msg("request handled")
}

func (env *Environ) Index(rw http.ResponseWriter, req *http.Request) {
	env.render.JSON(rw, http.StatusOK, map[string]string{
		"name":    "vagrantd",
		"version": AppVersion,
		"nodes":   env.url("node-list").Path,
		"flavors": env.url("flavor-list").Path,
	})
}
