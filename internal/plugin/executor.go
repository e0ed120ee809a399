package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/kathak/internal/metrics"
	"github.com/ayusman/kathak/internal/protocol"
)

// ErrSuperseded is returned when an invocation was terminated because a newer
// request arrived for the same session, or the session was closed while the
// handler was still running. Callers drop the response without surfacing an
// error.
var ErrSuperseded = errors.New("invocation superseded")

// ProtocolError describes a handler invocation that failed to produce a valid
// response: non-zero exit, empty output, or unparseable JSON. It is surfaced
// to the user but never tears down the session; the next input retries.
type ProtocolError struct {
	Plugin string
	Step   protocol.Step
	Stderr string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("plugin %s (%s): %v, stderr: %s", e.Plugin, e.Step, e.Err, e.Stderr)
	}
	return fmt.Sprintf("plugin %s (%s): %v", e.Plugin, e.Step, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Executor runs plugin handlers as short-lived subprocesses, one JSON document
// each way. At most one invocation is in flight per session: a newer request
// terminates the previous invocation's process, except replay invocations,
// which are untracked and always run to completion.
type Executor struct {
	timeout      time.Duration
	indexTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]*invocation
}

type invocation struct {
	cancel context.CancelFunc
}

// NewExecutor creates an Executor. Index steps get the longer indexTimeout;
// every other step gets timeout.
func NewExecutor(timeout, indexTimeout time.Duration) *Executor {
	return &Executor{
		timeout:      timeout,
		indexTimeout: indexTimeout,
		inflight:     make(map[string]*invocation),
	}
}

// Execute runs the plugin's handler with the given request and parses its
// entire stdout as one response document. It returns ErrSuperseded when the
// invocation was displaced mid-flight, or a *ProtocolError when the handler
// misbehaved.
func (e *Executor) Execute(ctx context.Context, p *Plugin, req *protocol.Request) (*protocol.Response, error) {
	timeout := e.timeout
	if req.Step == protocol.StepIndex {
		timeout = e.indexTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Track the invocation per session so a newer request can displace it.
	// Replay invocations are deliberately untracked.
	var inv *invocation
	if !req.Replay && req.Session != "" {
		inv = &invocation{cancel: cancel}
		e.mu.Lock()
		if prev, ok := e.inflight[req.Session]; ok {
			prev.cancel()
		}
		e.inflight[req.Session] = inv
		e.mu.Unlock()

		defer func() {
			e.mu.Lock()
			if e.inflight[req.Session] == inv {
				delete(e.inflight, req.Session)
			}
			e.mu.Unlock()
		}()
	}

	metrics.PluginInvocation(string(req.Step))

	reqJSON, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(runCtx, p.Handler)
	cmd.Dir = p.Path
	cmd.Stdin = bytes.NewReader(reqJSON)
	// A killed handler can leave a grandchild holding the stdout pipe;
	// don't let that stall Wait indefinitely.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// The caller going away is not the plugin's fault.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runCtx.Err() == context.Canceled {
		return nil, ErrSuperseded
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, e.fail(p, req, stderr.String(), fmt.Errorf("timeout after %s", timeout))
	}
	if runErr != nil {
		return nil, e.fail(p, req, stderr.String(), runErr)
	}

	resp, err := protocol.DecodeResponse(stdout.Bytes())
	if err != nil {
		return nil, e.fail(p, req, stderr.String(), err)
	}

	return resp, nil
}

// Cancel terminates the in-flight invocation for a session, if any. Used when
// a session closes while its handler is still running.
func (e *Executor) Cancel(session string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if inv, ok := e.inflight[session]; ok {
		inv.cancel()
		delete(e.inflight, session)
	}
}

func (e *Executor) fail(p *Plugin, req *protocol.Request, stderr string, err error) *ProtocolError {
	metrics.PluginFailure()
	return &ProtocolError{
		Plugin: p.ID,
		Step:   req.Step,
		Stderr: strings.TrimSpace(stderr),
		Err:    err,
	}
}
