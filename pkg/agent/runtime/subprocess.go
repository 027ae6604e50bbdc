package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/edgeless-project/edgeless/common/apierr"
	"github.com/edgeless-project/edgeless/pkg/api"
)

// SubprocessRuntime launches class code as an external process that
// speaks a line-delimited JSON protocol over stdin/stdout, for code paths
// (e.g. a compiled WASM engine invoked as a CLI) this core treats as an
// external collaborator rather than embedding a sandbox itself.
type SubprocessRuntime struct {
	format     string
	executable string // resolved from class.Code if non-empty, else this default
}

func NewSubprocessRuntime(format, defaultExecutable string) *SubprocessRuntime {
	return &SubprocessRuntime{format: format, executable: defaultExecutable}
}

func (r *SubprocessRuntime) Format() string { return r.format }

type subprocessRequest struct {
	Channel string `json:"channel"`
	Payload []byte `json:"payload"`
}

type subprocessResponse struct {
	Payload []byte `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r *SubprocessRuntime) Instantiate(ctx context.Context, class api.ClassSpecification, out OutputFunc) (Instance, error) {
	executable := r.executable
	if len(class.Code) > 0 {
		executable = string(class.Code)
	}
	cmd := exec.CommandContext(ctx, executable)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, apierr.Wrap(apierr.Runtime, "open subprocess stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apierr.Wrap(apierr.Runtime, "open subprocess stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, apierr.Wrap(apierr.Runtime, "start subprocess", err)
	}
	return &subprocessInstance{
		cmd:    cmd,
		stdin:  stdin,
		reader: bufio.NewReader(stdout),
		out:    out,
	}, nil
}

type subprocessInstance struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
	out    OutputFunc
}

func (i *subprocessInstance) roundTrip(channel string, payload []byte) (subprocessResponse, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	req, err := json.Marshal(subprocessRequest{Channel: channel, Payload: payload})
	if err != nil {
		return subprocessResponse{}, fmt.Errorf("encode subprocess request: %w", err)
	}
	req = append(req, '\n')
	if _, err := i.stdin.Write(req); err != nil {
		return subprocessResponse{}, apierr.Wrap(apierr.Runtime, "write to subprocess", err)
	}
	line, err := i.reader.ReadBytes('\n')
	if err != nil {
		return subprocessResponse{}, apierr.Wrap(apierr.Runtime, "read from subprocess", err)
	}
	var resp subprocessResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return subprocessResponse{}, apierr.Wrap(apierr.Runtime, "decode subprocess response", err)
	}
	return resp, nil
}

func (i *subprocessInstance) Cast(ctx context.Context, channel string, payload []byte) error {
	resp, err := i.roundTrip(channel, payload)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return apierr.NewRuntime("subprocess rejected cast", resp.Error)
	}
	return nil
}

func (i *subprocessInstance) Call(ctx context.Context, channel string, payload []byte) ([]byte, error) {
	resp, err := i.roundTrip(channel, payload)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, apierr.NewRuntime("subprocess rejected call", resp.Error)
	}
	return resp.Payload, nil
}

func (i *subprocessInstance) Stop(ctx context.Context) error {
	if err := i.cmd.Process.Kill(); err != nil {
		return apierr.Wrap(apierr.Runtime, "stop subprocess", err)
	}
	return nil
}

var _ Runtime = (*SubprocessRuntime)(nil)
