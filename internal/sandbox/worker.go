package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/conneroisu/crucible/internal/errors"
	"github.com/conneroisu/crucible/internal/registry"
)

// WorkerSubcommand is the hidden CLI subcommand that re-executes this
// binary as a validation worker.
const WorkerSubcommand = "sandbox-worker"

// memLimitEnv carries the worker's heap cap, in bytes.
const memLimitEnv = "CRUCIBLE_SANDBOX_MEMLIMIT"

// timeoutEnv carries the worker's wall-clock limit, in milliseconds, so a
// configured timeout reaches phase 1 and phase 2 alike.
const timeoutEnv = "CRUCIBLE_SANDBOX_TIMEOUT_MS"

// ValidationEngine runs a compiled module against stand-in bindings and
// reports whether it executed cleanly. A nil error means the module may
// proceed to real execution.
type ValidationEngine interface {
	Validate(ctx context.Context, code string) error
}

// Verdict is the worker's wire format: one JSON object on stdout
// describing how the validation run ended. Only this verdict crosses the
// process boundary; runtime values never do.
type Verdict struct {
	OK      bool   `json:"ok"`
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`
	Timeout bool   `json:"timeout,omitempty"`
}

func verdictFromError(err error) Verdict {
	if err == nil {
		return Verdict{OK: true}
	}

	var ce *errors.CompileError
	if stderrors.As(err, &ce) {
		return Verdict{
			Phase:   string(ce.Phase),
			Message: ce.Message,
			Timeout: ce.Timeout,
		}
	}

	return Verdict{Phase: string(errors.PhaseExecution), Message: err.Error()}
}

func (v Verdict) toError() error {
	if v.OK {
		return nil
	}
	if v.Timeout {
		return errors.NewExecutionTimeout(v.Message)
	}

	phase := errors.Phase(v.Phase)
	if phase == "" {
		phase = errors.PhaseExecution
	}

	return &errors.CompileError{
		Format:  errors.DefaultFormat,
		Phase:   phase,
		Message: v.Message,
	}
}

// InProcessValidator executes the module against stand-in bindings in the
// calling process. It is the code a worker process runs, and doubles as a
// direct engine when process isolation is unavailable or under test.
type InProcessValidator struct {
	registry *registry.ComponentRegistry
	timeout  time.Duration
}

// NewInProcessValidator builds a stand-in validation engine.
func NewInProcessValidator(reg *registry.ComponentRegistry, timeout time.Duration) *InProcessValidator {
	if reg == nil {
		reg = registry.NewComponentRegistry()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &InProcessValidator{registry: reg, timeout: timeout}
}

// Validate runs the module once with stand-in bindings and discards every
// produced value. Allowlist violations, uncaught errors, and timeouts
// surface as phase-tagged errors.
func (v *InProcessValidator) Validate(ctx context.Context, code string) error {
	ec, err := newExecutionContext(v.registry, v.timeout, true)
	if err != nil {
		return errors.FromError(errors.PhaseExecution, err)
	}
	defer ec.Close()

	if _, err := ec.runModule(ctx, code); err != nil {
		return errors.FromError(errors.PhaseExecution, err)
	}

	return nil
}

// ProcessEngine validates modules in a separate worker process whose heap
// is capped. It is pure transport: the worker runs an InProcessValidator
// and writes a Verdict; this side reconstructs the error from it.
type ProcessEngine struct {
	workerPath  string
	memoryLimit int64
	timeout     time.Duration
}

// NewProcessEngine builds a subprocess validation engine. An empty
// workerPath means the current executable.
func NewProcessEngine(workerPath string, memoryLimit int64, timeout time.Duration) *ProcessEngine {
	if memoryLimit <= 0 {
		memoryLimit = DefaultMemoryLimit
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &ProcessEngine{workerPath: workerPath, memoryLimit: memoryLimit, timeout: timeout}
}

// Validate ships the module to a worker process over stdin and interprets
// its verdict. The parent enforces its own wall-clock deadline on top of
// the worker's internal one, so a wedged or killed worker still resolves
// to a timeout instead of hanging the pipeline.
func (e *ProcessEngine) Validate(ctx context.Context, code string) error {
	path := e.workerPath
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return errors.NewExecutionError("locating validation worker binary", err)
		}
		path = exe
	}

	// Grace on top of the worker's own timeout so a clean verdict wins
	// the race against the parent-side kill.
	deadline := e.timeout + 2*time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, WorkerSubcommand)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%d", memLimitEnv, e.memoryLimit),
		fmt.Sprintf("%s=%d", timeoutEnv, e.timeout.Milliseconds()))
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.NewExecutionError("wiring validation worker stdin", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return errors.NewExecutionError("starting validation worker", err)
	}

	if _, err := io.WriteString(stdin, code); err != nil {
		_ = stdin.Close()
		_ = cmd.Wait()
		return errors.NewExecutionError("writing module to validation worker", err)
	}
	if err := stdin.Close(); err != nil {
		_ = cmd.Wait()
		return errors.NewExecutionError("closing validation worker stdin", err)
	}

	waitErr := cmd.Wait()

	if runCtx.Err() != nil && ctx.Err() == nil {
		return errors.NewExecutionTimeout(fmt.Sprintf("execution timed out after %s", e.timeout))
	}
	if ctx.Err() != nil {
		return errors.NewExecutionTimeout("execution canceled: " + ctx.Err().Error())
	}

	var verdict Verdict
	if err := json.Unmarshal(stdout.Bytes(), &verdict); err != nil {
		// The worker died without a verdict; an OOM kill from the heap
		// cap lands here.
		detail := stderr.String()
		if waitErr != nil {
			return errors.NewExecutionError(fmt.Sprintf(
				"validation worker failed without a verdict: %v: %s", waitErr, detail), waitErr)
		}
		return errors.NewExecutionError("validation worker produced no verdict: "+detail, err)
	}

	return verdict.toError()
}

// RunWorker is the worker-process entry point: apply the heap cap, read
// the module from stdin, validate it against stand-in bindings under the
// parent's configured wall-clock limit, and write the verdict to stdout.
// The return value is the process exit code.
func RunWorker(stdin io.Reader, stdout io.Writer) int {
	if raw := os.Getenv(memLimitEnv); raw != "" {
		if limit, err := strconv.ParseInt(raw, 10, 64); err == nil && limit > 0 {
			debug.SetMemoryLimit(limit)
		}
	}

	timeout := DefaultTimeout
	if raw := os.Getenv(timeoutEnv); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}

	code, err := io.ReadAll(stdin)
	if err != nil {
		writeVerdict(stdout, verdictFromError(errors.NewExecutionError("reading module from stdin", err)))
		return 1
	}

	validator := NewInProcessValidator(nil, timeout)
	verdict := verdictFromError(validator.Validate(context.Background(), string(code)))
	writeVerdict(stdout, verdict)

	if verdict.OK {
		return 0
	}

	return 1
}

func writeVerdict(w io.Writer, v Verdict) {
	_ = json.NewEncoder(w).Encode(v)
}
