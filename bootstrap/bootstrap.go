package bootstrap

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"subuk/vagrantd/compute"
	"subuk/vagrantd/config"
	"subuk/vagrantd/filesystem"
	"subuk/vagrantd/network"
	"subuk/vagrantd/util"
	"subuk/vagrantd/vagrant"
	"subuk/vagrantd/vagrantfile"
	"subuk/vagrantd/web"
	"time"

	"github.com/rs/zerolog"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Compute  *compute.Service
	Template *vagrantfile.Template
	closers  []io.Closer
}

func NewLogger(level string, out io.Writer) (zerolog.Logger, error) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), util.NewError(err, "invalid log level")
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out}).Level(logLevel).With().Timestamp().Logger(), nil
}

func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	tmpl := vagrantfile.Default()
	if cfg.Vagrant.Template != "" {
		loaded, err := vagrantfile.Load(cfg.Vagrant.Template)
		if err != nil {
			return nil, util.NewError(err, "cannot load vagrantfile template")
		}
		tmpl = loaded
	}
	app.Template = tmpl

	storage, err := filesystem.NewNodeStorage(cfg.StateFile)
	if err != nil {
		return nil, util.NewError(err, "cannot initialize node storage")
	}
	pool, err := network.NewPool(cfg.Network.Cidr, cfg.Network.Gateway, cfg.Network.First)
	if err != nil {
		return nil, util.NewError(err, "cannot initialize address pool")
	}

	var executor vagrant.Executor
	workdir := cfg.Vagrant.Workdir
	if cfg.Remote() {
		connectionPool, err := vagrant.NewConnectionPool(vagrant.SSHConfig{
			Address:        cfg.SSH.Address,
			User:           cfg.SSH.User,
			KeyFile:        cfg.SSH.KeyFile,
			KnownHostsFile: cfg.SSH.KnownHostsFile,
			Timeout:        time.Duration(cfg.SSH.TimeoutSeconds) * time.Second,
		}, logger.With().Str("component", "ssh-connection-pool").Logger())
		if err != nil {
			return nil, util.NewError(err, "cannot initialize ssh connection")
		}
		app.closers = append(app.closers, connectionPool)
		executor = vagrant.NewSSHExecutor(connectionPool, logger.With().Str("component", "ssh-executor").Logger())
	} else {
		workdir = util.ExpandHomeDir(workdir)
		executor = vagrant.NewLocalExecutor(logger.With().Str("component", "local-executor").Logger(), cfg.Vagrant.Env)
	}
	provisioner := vagrant.NewProvisioner(executor, vagrant.ProvisionerConfig{
		Binary:   cfg.Vagrant.Binary,
		Workdir:  workdir,
		Provider: cfg.Vagrant.Provider,
	}, logger.With().Str("component", "vagrant").Logger())

	epub := filesystem.NewScriptedEventBroker(
		logger.With().Str("component", "event-broker").Logger(),
		time.Duration(cfg.HookTimeoutSeconds)*time.Second,
	)
	for _, sub := range cfg.Subscribes {
		epub.Subscribe(sub.Event, sub.Script, sub.Mandatory)
	}

	app.Compute = compute.New(
		compute.NewNodeService(storage),
		compute.NewFlavorService(cfg.ComputeFlavors(), cfg.DefaultFlavor),
		pool,
		tmpl,
		provisioner,
		epub,
		cfg.Parallelism,
	)
	return app, nil
}

func (app *App) Close() {
	for _, closer := range app.closers {
		if err := closer.Close(); err != nil {
			app.Logger.Warn().Err(err).Msg("close failed")
		}
	}
}

// Load reads the configuration and builds the application, exiting on error.
func Load(configFilename string, required bool) *App {
	cfg, err := config.Load(configFilename, required)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %s\n", err)
		os.Exit(1)
	}
	logger, err := NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %s\n", err)
		os.Exit(1)
	}
	app, err := NewApp(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("initialization failed")
		os.Exit(1)
	}
	return app
}

func (app *App) Web() error {
	webenv := web.New(app.Config, app.Logger.With().Str("component", "web").Logger(), app.Compute)
	server := http.Server{
		Addr:    app.Config.Web.Listen,
		Handler: webenv,
	}
	app.Logger.Info().Str("addr", server.Addr).Msg("staring server")
	if err := server.ListenAndServe(); err != nil {
		return util.NewError(err, "serve failed")
	}
	return nil
}
