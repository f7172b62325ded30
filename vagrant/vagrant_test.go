package vagrant

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"subuk/vagrantd/compute"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeVagrant = `#!/bin/sh
echo "$@" >> calls.log
case "$1" in
up)
  mkdir -p .vagrant/machines/default/virtualbox
  echo "3f2a9c1e-1111-2222-3333-444455556666" > .vagrant/machines/default/virtualbox/id
  echo "1700000000,default,action,up,start"
  ;;
status)
  if [ -f .vagrant/machines/default/virtualbox/id ]; then state=running; else state=not_created; fi
  echo "1700000000,default,metadata,provider,virtualbox"
  echo "1700000000,default,provider-name,virtualbox"
  echo "1700000000,default,state,$state"
  echo "1700000000,default,state-human-short,$state"
  ;;
destroy)
  rm -rf .vagrant
  ;;
*)
  echo "unknown command $1" >&2
  exit 1
  ;;
esac
`

func newFakeVagrant(t *testing.T) (string, string) {
	root := t.TempDir()
	binary := filepath.Join(root, "vagrant")
	require.NoError(t, ioutil.WriteFile(binary, []byte(fakeVagrant), 0755))
	workdir := filepath.Join(root, "nodes")
	return binary, workdir
}

func TestProvisionerLifecycle(t *testing.T) {
	binary, workdir := newFakeVagrant(t)
	exec := NewLocalExecutor(zerolog.Nop(), nil)
	prov := NewProvisioner(exec, ProvisionerConfig{Binary: binary, Workdir: workdir}, zerolog.Nop())
	ctx := context.Background()
	node := &compute.Node{Id: "node3", IpAddress: "172.17.8.103", Memory: compute.NewSize(2048, compute.SizeUnitM)}

	status, err := prov.Status(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, compute.NodeStatusNotCreated, status)

	providerId, err := prov.Up(ctx, node, []byte("# vagrantfile\n"))
	require.NoError(t, err)
	assert.Equal(t, "3f2a9c1e-1111-2222-3333-444455556666", providerId)

	content, err := ioutil.ReadFile(filepath.Join(workdir, "node3", "Vagrantfile"))
	require.NoError(t, err)
	assert.Equal(t, "# vagrantfile\n", string(content))

	status, err = prov.Status(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, compute.NodeStatusRunning, status)

	calls, err := ioutil.ReadFile(filepath.Join(workdir, "node3", "calls.log"))
	require.NoError(t, err)
	assert.Contains(t, string(calls), "up --provider virtualbox --machine-readable")

	require.NoError(t, prov.Destroy(ctx, node))
	_, err = os.Stat(filepath.Join(workdir, "node3"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, prov.Destroy(ctx, node))
}

func TestProvisionerUpFailure(t *testing.T) {
	root := t.TempDir()
	binary := filepath.Join(root, "vagrant")
	require.NoError(t, ioutil.WriteFile(binary, []byte("#!/bin/sh\necho 'VirtualBox is missing' >&2\nexit 1\n"), 0755))
	prov := NewProvisioner(NewLocalExecutor(zerolog.Nop(), nil), ProvisionerConfig{Binary: binary, Workdir: root}, zerolog.Nop())

	_, err := prov.Up(context.Background(), &compute.Node{Id: "n1"}, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VirtualBox is missing")
}

func TestProvisionerUpWithoutMachineId(t *testing.T) {
	root := t.TempDir()
	binary := filepath.Join(root, "vagrant")
	require.NoError(t, ioutil.WriteFile(binary, []byte("#!/bin/sh\nexit 0\n"), 0755))
	prov := NewProvisioner(NewLocalExecutor(zerolog.Nop(), nil), ProvisionerConfig{Binary: binary, Workdir: root}, zerolog.Nop())

	providerId, err := prov.Up(context.Background(), &compute.Node{Id: "n1"}, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no machine id")
	assert.Equal(t, "", providerId)
}

func TestLocalExecutorContext(t *testing.T) {
	exec := NewLocalExecutor(zerolog.Nop(), []string{"VAGRANTD_TEST=1"})
	out, err := exec.Run(context.Background(), "", "sh", "-c", "echo $VAGRANTD_TEST")
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(out))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = exec.Run(ctx, "", "sleep", "5")
	assert.Error(t, err)

	exists, err := exec.Exists(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestParseMachineReadable(t *testing.T) {
	output := []byte("1700000000,default,state,running\n" +
		"1700000001,default,ui,info,Current machine states:%!(VAGRANT_COMMA) one\\ntwo\n" +
		"1700000002,,ui,output,done\n\n")
	records, err := ParseMachineReadable(output)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Record{Timestamp: 1700000000, Target: "default", Type: "state", Data: []string{"running"}}, records[0])
	assert.Equal(t, []string{"info", "Current machine states:, one\ntwo"}, records[1].Data)
	assert.Equal(t, "", records[2].Target)

	data, found := Find(records, "state")
	assert.True(t, found)
	assert.Equal(t, []string{"running"}, data)
	_, found = Find(records, "box-name")
	assert.False(t, found)

	_, err = ParseMachineReadable([]byte("garbage"))
	assert.Error(t, err)
	_, err = ParseMachineReadable([]byte("abc,default,state,running"))
	assert.Error(t, err)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, ShellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, ShellQuote("it's"))
	assert.Equal(t, `''`, ShellQuote(""))
}
