package vagrant

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net"
	"path"
	"strings"
	"subuk/vagrantd/util"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SSHConfig struct {
	Address        string
	User           string
	KeyFile        string
	KnownHostsFile string
	Timeout        time.Duration
}

// ConnectionPool keeps one ssh client to the virtualization host and
// reconnects when it goes away.
type ConnectionPool struct {
	config *ssh.ClientConfig
	addr   string
	mutex  *sync.Mutex
	logger zerolog.Logger
	cached *ssh.Client
}

func NewConnectionPool(cfg SSHConfig, logger zerolog.Logger) (*ConnectionPool, error) {
	key, err := ioutil.ReadFile(util.ExpandHomeDir(cfg.KeyFile))
	if err != nil {
		return nil, util.NewError(err, "cannot read ssh key")
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, util.NewError(err, "cannot parse ssh key")
	}
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		hostKeyCallback, err = knownhosts.New(util.ExpandHomeDir(cfg.KnownHostsFile))
		if err != nil {
			return nil, util.NewError(err, "cannot load known hosts")
		}
	} else {
		logger.Warn().Str("addr", cfg.Address).Msg("host key verification disabled")
	}
	addr := cfg.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	return &ConnectionPool{
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         cfg.Timeout,
		},
		addr:   addr,
		mutex:  &sync.Mutex{},
		logger: logger,
	}, nil
}

func (p *ConnectionPool) Acquire() (*ssh.Client, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.cached != nil {
		if _, _, err := p.cached.SendRequest("keepalive@openssh.com", true, nil); err == nil {
			return p.cached, nil
		}
		p.logger.Debug().Msg("cached connection is dead")
		p.cached.Close()
		p.cached = nil
	}
	p.logger.Debug().Str("addr", p.addr).Msg("establishing new connection")
	client, err := ssh.Dial("tcp", p.addr, p.config)
	if err != nil {
		return nil, util.NewError(err, "cannot connect to %s", p.addr)
	}
	p.cached = client
	return client, nil
}

func (p *ConnectionPool) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.cached == nil {
		return nil
	}
	err := p.cached.Close()
	p.cached = nil
	return err
}

// SSHExecutor runs vagrant on a remote host, the way a controller living
// inside a VM drives the hypervisor it runs on.
type SSHExecutor struct {
	pool   *ConnectionPool
	logger zerolog.Logger
}

func NewSSHExecutor(pool *ConnectionPool, logger zerolog.Logger) *SSHExecutor {
	return &SSHExecutor{pool: pool, logger: logger}
}

func (e *SSHExecutor) exec(ctx context.Context, command string, stdin []byte) ([]byte, error) {
	client, err := e.pool.Acquire()
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, util.NewError(err, "cannot open ssh session")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	done := make(chan error, 1)
	e.logger.Debug().Str("cmd", command).Msg("running remote command")
	go func() {
		done <- session.Run(command)
	}()
	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGTERM) // Ignore error
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return stdout.Bytes(), util.NewError(err, "%s failed: %s", command, strings.TrimSpace(stderr.String()))
		}
	}
	return stdout.Bytes(), nil
}

func (e *SSHExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	words := []string{ShellQuote(name)}
	for _, arg := range args {
		words = append(words, ShellQuote(arg))
	}
	command := strings.Join(words, " ")
	if dir != "" {
		command = fmt.Sprintf("cd %s && %s", ShellQuote(dir), command)
	}
	return e.exec(ctx, command, nil)
}

func (e *SSHExecutor) WriteFile(ctx context.Context, filename string, data []byte) error {
	command := fmt.Sprintf("mkdir -p %s && cat > %s", ShellQuote(path.Dir(filename)), ShellQuote(filename))
	_, err := e.exec(ctx, command, data)
	return err
}

func (e *SSHExecutor) ReadFile(ctx context.Context, filename string) ([]byte, error) {
	return e.exec(ctx, "cat "+ShellQuote(filename), nil)
}

func (e *SSHExecutor) RemoveAll(ctx context.Context, filename string) error {
	_, err := e.exec(ctx, "rm -rf "+ShellQuote(filename), nil)
	return err
}

func (e *SSHExecutor) Exists(ctx context.Context, filename string) (bool, error) {
	out, err := e.exec(ctx, fmt.Sprintf("if test -e %s; then echo yes; else echo no; fi", ShellQuote(filename)), nil)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) == "yes", nil
}

func ShellQuote(s string) string {
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}
