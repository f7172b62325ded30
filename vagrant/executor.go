package vagrant

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"subuk/vagrantd/util"

	"github.com/rs/zerolog"
)

// Executor runs commands and touches files on the host that owns the
// virtualization provider.
type Executor interface {
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
	WriteFile(ctx context.Context, filename string, data []byte) error
	ReadFile(ctx context.Context, filename string) ([]byte, error)
	RemoveAll(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

type LocalExecutor struct {
	logger zerolog.Logger
	env    []string
}

func NewLocalExecutor(logger zerolog.Logger, env []string) *LocalExecutor {
	return &LocalExecutor{logger: logger, env: env}
}

func (e *LocalExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), e.env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	e.logger.Debug().Str("dir", dir).Str("cmd", name).Strs("args", args).Msg("running command")
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), util.NewError(err, "%s %s failed: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (e *LocalExecutor) WriteFile(ctx context.Context, filename string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return util.NewError(err, "cannot create directory for %s", filename)
	}
	if err := ioutil.WriteFile(filename, data, 0644); err != nil {
		return util.NewError(err, "cannot write %s", filename)
	}
	return nil
}

func (e *LocalExecutor) ReadFile(ctx context.Context, filename string) ([]byte, error) {
	content, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, util.NewError(err, "cannot read %s", filename)
	}
	return content, nil
}

func (e *LocalExecutor) RemoveAll(ctx context.Context, path string) error {
	return os.RemoveAll(path)
}

func (e *LocalExecutor) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
