package services

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/manthysbr/gridjob/internal/core/domain"
)

// DescriptorBuilder assembles job descriptors from the build parameters and
// the input manifest.
type DescriptorBuilder struct {
	logger *slog.Logger
	cfg    domain.BuildConfig
}

func NewDescriptorBuilder(logger *slog.Logger, cfg domain.BuildConfig) *DescriptorBuilder {
	return &DescriptorBuilder{
		logger: logger,
		cfg:    cfg,
	}
}

// Config returns the parameters the builder was created with.
func (b *DescriptorBuilder) Config() domain.BuildConfig {
	return b.cfg
}

// Build reads the manifest and returns a fully populated descriptor.
// A missing or unreadable manifest is returned as the *fs.PathError from the
// file system, untouched, and no descriptor is produced.
func (b *DescriptorBuilder) Build() (*domain.JobDescriptor, error) {
	inputs, err := readManifest(b.cfg.Manifest)
	if err != nil {
		return nil, err
	}

	d := domain.NewJobDescriptor(b.cfg, inputs)
	b.logger.Info("job descriptor built",
		"request_name", d.RequestName(),
		"manifest", b.cfg.Manifest,
		"units", d.TotalUnits(),
	)
	return d, nil
}

// readManifest returns one identifier per non-empty line, in file order.
func readManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var inputs []string
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !utf8.ValidString(line) {
			return nil, fmt.Errorf("manifest %s line %d: invalid UTF-8", path, lineNo)
		}
		inputs = append(inputs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return inputs, nil
}

// WithStorageUser returns a builder writing outputs under /store/user/<user>.
func (b *DescriptorBuilder) WithStorageUser(user string) *DescriptorBuilder {
	cfg := b.cfg
	cfg.StorageUser = user
	return NewDescriptorBuilder(b.logger, cfg)
}
