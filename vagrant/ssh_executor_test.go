package vagrant

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io/ioutil"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"subuk/vagrantd/compute"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sshTestServer runs exec requests through sh -c on the local machine.
type sshTestServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	mu       sync.Mutex
	conns    []*ssh.ServerConn
}

func (s *sshTestServer) serve() {
	for {
		nConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(nConn)
	}
}

func (s *sshTestServer) handle(nConn net.Conn) {
	conn, chans, reqs, err := ssh.NewServerConn(nConn, s.config)
	if err != nil {
		nConn.Close()
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()
	go ssh.DiscardRequests(reqs)
	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "only sessions are supported")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go serveSession(channel, requests)
	}
}

func serveSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		if req.Type != "exec" {
			req.Reply(false, nil)
			continue
		}
		payload := struct{ Command string }{}
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			return
		}
		req.Reply(true, nil)
		cmd := exec.Command("sh", "-c", payload.Command)
		cmd.Stdin = channel
		cmd.Stdout = channel
		cmd.Stderr = channel.Stderr()
		status := uint32(0)
		if err := cmd.Run(); err != nil {
			status = 255
			exitErr := &exec.ExitError{}
			if errors.As(err, &exitErr) {
				status = uint32(exitErr.ExitCode())
			}
		}
		channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
		return
	}
}

func (s *sshTestServer) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

func (s *sshTestServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// newSSHTestServer returns a running server and a client config pointing at
// it with a private key and a known_hosts file.
func newSSHTestServer(t *testing.T) (*sshTestServer, SSHConfig) {
	root := t.TempDir()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	clientKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(clientKey)
	require.NoError(t, err)
	keyFile := filepath.Join(root, "id_ecdsa")
	require.NoError(t, ioutil.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0600))
	clientPub, err := ssh.NewPublicKey(&clientKey.PublicKey)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if meta.User() == "vagrant" && bytes.Equal(key.Marshal(), clientPub.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, errors.New("unknown key")
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &sshTestServer{listener: listener, config: config}
	go server.serve()
	t.Cleanup(func() {
		listener.Close()
		server.dropConnections()
	})

	addr := listener.Addr().String()
	knownHostsFile := filepath.Join(root, "known_hosts")
	line := knownhosts.Line([]string{addr}, hostSigner.PublicKey())
	require.NoError(t, ioutil.WriteFile(knownHostsFile, []byte(line+"\n"), 0644))

	return server, SSHConfig{
		Address:        addr,
		User:           "vagrant",
		KeyFile:        keyFile,
		KnownHostsFile: knownHostsFile,
		Timeout:        5 * time.Second,
	}
}

func newTestSSHExecutor(t *testing.T) (*sshTestServer, *ConnectionPool, *SSHExecutor) {
	server, cfg := newSSHTestServer(t)
	pool, err := NewConnectionPool(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return server, pool, NewSSHExecutor(pool, zerolog.Nop())
}

func TestSSHExecutorFiles(t *testing.T) {
	_, _, executor := newTestSSHExecutor(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "node 'three'")
	filename := filepath.Join(dir, VagrantfileName)

	exists, err := executor.Exists(ctx, filename)
	require.NoError(t, err)
	assert.False(t, exists)

	content := []byte("config.vm.host_name = \"node3\"\n$literal 'quoted'\n")
	require.NoError(t, executor.WriteFile(ctx, filename, content))
	stored, err := ioutil.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	exists, err = executor.Exists(ctx, filename)
	require.NoError(t, err)
	assert.True(t, exists)

	read, err := executor.ReadFile(ctx, filename)
	require.NoError(t, err)
	assert.Equal(t, content, read)

	require.NoError(t, executor.RemoveAll(ctx, dir))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	_, err = executor.ReadFile(ctx, filename)
	assert.Error(t, err)
}

func TestSSHExecutorRun(t *testing.T) {
	_, _, executor := newTestSSHExecutor(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "work dir")
	require.NoError(t, os.MkdirAll(dir, 0755))

	out, err := executor.Run(ctx, dir, "sh", "-c", "pwd -P; echo \"$0\"", "it's")
	require.NoError(t, err)
	realDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, realDir+"\nit's\n", string(out))

	_, err = executor.Run(ctx, "", "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	out, err = executor.Run(timeoutCtx, "", "sleep", "2")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Nil(t, out)
}

func TestConnectionPoolReconnect(t *testing.T) {
	server, pool, executor := newTestSSHExecutor(t)
	ctx := context.Background()

	_, err := executor.Run(ctx, "", "true")
	require.NoError(t, err)
	first, err := pool.Acquire()
	require.NoError(t, err)
	second, err := pool.Acquire()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, server.connections())

	server.dropConnections()
	first.Wait()

	out, err := executor.Run(ctx, "", "echo", "back")
	require.NoError(t, err)
	assert.Equal(t, "back\n", string(out))

	third, err := pool.Acquire()
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 1, server.connections())
}

func TestConnectionPoolRejectsUnknownHost(t *testing.T) {
	_, cfg := newSSHTestServer(t)
	require.NoError(t, ioutil.WriteFile(cfg.KnownHostsFile, nil, 0644))
	pool, err := NewConnectionPool(cfg, zerolog.Nop())
	require.NoError(t, err)
	_, err = pool.Acquire()
	assert.Error(t, err)
}

func TestProvisionerOverSSH(t *testing.T) {
	_, _, executor := newTestSSHExecutor(t)
	binary, workdir := newFakeVagrant(t)
	prov := NewProvisioner(executor, ProvisionerConfig{Binary: binary, Workdir: workdir}, zerolog.Nop())
	ctx := context.Background()
	node := &compute.Node{Id: "node3"}

	providerId, err := prov.Up(ctx, node, []byte("# vagrantfile\n"))
	require.NoError(t, err)
	assert.Equal(t, "3f2a9c1e-1111-2222-3333-444455556666", providerId)

	status, err := prov.Status(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, compute.NodeStatusRunning, status)

	require.NoError(t, prov.Destroy(ctx, node))
	_, err = os.Stat(filepath.Join(workdir, "node3"))
	assert.True(t, os.IsNotExist(err))
}
