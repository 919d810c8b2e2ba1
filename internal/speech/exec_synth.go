package speech

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	apierrors "github.com/diogo/aceorbit/internal/errors"
	"github.com/diogo/aceorbit/internal/logging"
)

// espeak defaults that correspond to a rate and pitch of 1
const (
	baseWordsPerMinute = 175
	basePitch          = 50
)

// ExecSynthesizer speaks through an espeak-compatible command. Voices
// are listed asynchronously, so Voices may be empty right after
// construction.
type ExecSynthesizer struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	voices  []Voice
	current *exec.Cmd
	done    chan struct{} // closed when current exits

	wg sync.WaitGroup
}

// NewExecSynthesizer resolves name on PATH and starts loading its voices
func NewExecSynthesizer(logger *zap.Logger, name string) (*ExecSynthesizer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apierrors.NewCapabilityError(apierrors.CapabilitySynthesis)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.NewCapabilityError(apierrors.CapabilitySynthesis), err)
	}

	s := &ExecSynthesizer{
		path:   path,
		logger: logging.OrNop(logger).Named("speech.exec"),
	}
	s.wg.Add(1)
	go s.loadVoices()
	return s, nil
}

func (s *ExecSynthesizer) loadVoices() {
	defer s.wg.Done()

	out, err := exec.Command(s.path, "--voices").Output()
	if err != nil {
		s.logger.Debug("voice list unavailable", zap.Error(err))
		return
	}
	voices := parseVoices(out)

	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()
	s.logger.Debug("voices loaded", zap.Int("count", len(voices)))
}

// Voices returns the voices loaded so far
func (s *ExecSynthesizer) Voices() []Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Voice, len(s.voices))
	copy(out, s.voices)
	return out
}

// Speak starts playback of u, replacing anything already playing
func (s *ExecSynthesizer) Speak(u Utterance) error {
	args := speakArgs(u)
	cmd := exec.Command(s.path, args...)

	s.mu.Lock()
	if s.current != nil {
		_ = s.current.Process.Kill()
	}
	if err := cmd.Start(); err != nil {
		s.current = nil
		s.mu.Unlock()
		return fmt.Errorf("failed to start synthesizer: %w", err)
	}
	done := make(chan struct{})
	s.current = cmd
	s.done = done
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		_ = cmd.Wait()
		s.mu.Lock()
		if s.current == cmd {
			s.current = nil
		}
		s.mu.Unlock()
	}()
	return nil
}

// Wait blocks until the most recent utterance has finished playing
func (s *ExecSynthesizer) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Cancel stops the current utterance
func (s *ExecSynthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		_ = s.current.Process.Kill()
		s.current = nil
	}
}

// Close cancels playback and waits for child processes to exit
func (s *ExecSynthesizer) Close() error {
	s.Cancel()
	s.wg.Wait()
	return nil
}

func speakArgs(u Utterance) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	pitch := u.Pitch
	if pitch <= 0 {
		pitch = 1
	}

	var args []string
	if u.Voice != nil && u.Voice.ID != "" {
		args = append(args, "-v", u.Voice.ID)
	}
	args = append(args,
		"-s", strconv.Itoa(int(baseWordsPerMinute*rate)),
		"-p", strconv.Itoa(min(int(basePitch*pitch), 99)),
		"--", u.Text,
	)
	return args
}

// parseVoices reads the table printed by `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  en-gb           --/M      English_(Great_Britain) gmw/en
func parseVoices(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		voices = append(voices, Voice{
			ID:   fields[1],
			Name: strings.ReplaceAll(fields[3], "_", " "),
			Lang: fields[1],
		})
	}
	return voices
}
