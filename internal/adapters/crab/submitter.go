package crab

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/manthysbr/gridjob/internal/core/domain"
	"github.com/manthysbr/gridjob/internal/core/ports"
)

const outputTailBytes = 2048

// WorkAreas resolves and creates local work area directories.
type WorkAreas interface {
	PrepareWorkArea(workArea string) (string, error)
}

// Submitter hands descriptors to the crab command line client.
type Submitter struct {
	logger    *slog.Logger
	binary    string
	timeout   time.Duration
	workAreas WorkAreas
}

// NewSubmitter creates a submitter running binary (usually "crab") with a per
// invocation timeout. A zero timeout means no limit.
func NewSubmitter(logger *slog.Logger, binary string, timeout time.Duration, workAreas WorkAreas) *Submitter {
	if binary == "" {
		binary = "crab"
	}
	return &Submitter{
		logger:    logger,
		binary:    binary,
		timeout:   timeout,
		workAreas: workAreas,
	}
}

// Ensure Submitter implements Submitter
var _ ports.Submitter = (*Submitter)(nil)

// WriteConfig renders the descriptor into its work area and returns the file path.
func (s *Submitter) WriteConfig(d *domain.JobDescriptor) (string, error) {
	dir, err := s.workAreas.PrepareWorkArea(d.WorkArea())
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := Render(&buf, d); err != nil {
		return "", err
	}

	path := filepath.Join(dir, ConfigFileName(d))
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write crab config: %w", err)
	}
	return path, nil
}

// Submit writes the configuration and runs `crab submit -c <config>` from the
// directory holding the work area, so relative input files resolve there.
func (s *Submitter) Submit(ctx context.Context, d *domain.JobDescriptor) (string, error) {
	path, err := s.WriteConfig(d)
	if err != nil {
		return "", err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.binary, "submit", "-c", path)
	cmd.Dir = filepath.Dir(filepath.Dir(path))

	s.logger.Info("running crab submit", "binary", s.binary, "config", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("crab submit failed: %w: %s", err, tail(out))
	}
	return string(out), nil
}

func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > outputTailBytes {
		s = s[len(s)-outputTailBytes:]
	}
	return s
}
