package speech

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	apierrors "github.com/diogo/aceorbit/internal/errors"
	"github.com/diogo/aceorbit/internal/logging"
)

// EnvRecognitionLang carries the recognition language to the command
const EnvRecognitionLang = "ACEORBIT_RECOGNITION_LANG"

// ExecRecognizer recognizes speech by running an external command that
// captures one utterance and prints the transcript on stdout, one final
// segment per line. Exit status 0 ends the recognition normally.
type ExecRecognizer struct {
	path   string
	args   []string
	logger *zap.Logger
}

// NewExecRecognizer resolves name on PATH. A missing command is reported
// as an unavailable capability.
func NewExecRecognizer(logger *zap.Logger, name string, args ...string) (*ExecRecognizer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apierrors.NewCapabilityError(apierrors.CapabilityRecognition)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.NewCapabilityError(apierrors.CapabilityRecognition), err)
	}
	return &ExecRecognizer{
		path:   path,
		args:   args,
		logger: logging.OrNop(logger).Named("speech.exec"),
	}, nil
}

// NewRecognition prepares a capture; the command runs on Start
func (r *ExecRecognizer) NewRecognition(opts RecognitionOptions) (Recognition, error) {
	cmd := exec.Command(r.path, r.args...)
	cmd.Env = append(os.Environ(), EnvRecognitionLang+"="+opts.Lang)
	return &execRecognition{
		cmd:    cmd,
		events: make(chan RecognitionEvent, 4),
		logger: r.logger,
	}, nil
}

type execRecognition struct {
	cmd    *exec.Cmd
	events chan RecognitionEvent
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	aborted bool
}

func (x *execRecognition) Events() <-chan RecognitionEvent {
	return x.events
}

func (x *execRecognition) Start() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.started {
		return errors.New("recognition already started")
	}
	stdout, err := x.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := x.cmd.Start(); err != nil {
		return err
	}
	x.started = true

	go x.run(bufio.NewScanner(stdout))
	return nil
}

// run reads segments until the command exits, then reports them
func (x *execRecognition) run(scanner *bufio.Scanner) {
	defer close(x.events)

	var results []RecognitionResult
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			results = append(results, RecognitionResult{Transcript: line, Final: true})
		}
	}
	waitErr := x.cmd.Wait()

	x.mu.Lock()
	aborted := x.aborted
	stopped := x.stopped
	x.mu.Unlock()

	if aborted {
		x.events <- RecognitionEvent{Kind: EventEnd}
		return
	}
	if len(results) > 0 {
		x.events <- RecognitionEvent{Kind: EventResult, Results: results}
	}
	// An interrupted command exits non-zero; that is the expected outcome of Stop
	if waitErr != nil && !stopped {
		x.logger.Debug("recognizer command failed", zap.Error(waitErr))
		x.events <- RecognitionEvent{Kind: EventError, Err: waitErr}
	}
	x.events <- RecognitionEvent{Kind: EventEnd}
}

func (x *execRecognition) Stop() {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.started || x.stopped || x.aborted {
		return
	}
	x.stopped = true
	if err := x.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = x.cmd.Process.Kill()
	}
}

func (x *execRecognition) Abort() {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.started || x.aborted {
		return
	}
	x.aborted = true
	_ = x.cmd.Process.Kill()
}
