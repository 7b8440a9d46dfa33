package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"GapSentinel/internal/errs"
	"GapSentinel/internal/logging"

	"github.com/sirupsen/logrus"
)

// FileSource reads {Dir}/{symbol}.json and writes repaired output to
// {OutputDir}/{symbol}.json.
type FileSource struct {
	Dir       string
	OutputDir string
	logger    *logrus.Logger
}

// NewFileSource creates a file-backed source.
func NewFileSource(dir, outputDir string, logger *logrus.Logger) *FileSource {
	return &FileSource{Dir: dir, OutputDir: outputDir, logger: logging.OrDiscard(logger)}
}

func (f *FileSource) Name() string { return "file" }

// Load decodes the top-level object lazily: entry values stay raw JSON until the
// analyzer classifies them.
func (f *FileSource) Load(ctx context.Context, symbol string) (map[string]any, error) {
	if err := checkSymbol(symbol); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(f.Dir, symbol+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errs.New(errs.NotFound, "no dataset for %s at %s", symbol, path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "read %s", path)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "decode %s", path)
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	f.logger.WithFields(logrus.Fields{"symbol": symbol, "entries": len(out), "bytes": len(data)}).Debug("dataset loaded")
	return out, nil
}

// Save writes output atomically.
func (f *FileSource) Save(ctx context.Context, symbol string, output map[string]any) error {
	if err := checkSymbol(symbol); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return errs.Wrap(errs.InvalidInput, err, "encode %s output", symbol)
	}
	if err := os.MkdirAll(f.OutputDir, 0o755); err != nil {
		return errs.Wrap(errs.IOFailure, err, "create %s", f.OutputDir)
	}
	path := filepath.Join(f.OutputDir, symbol+".json")
	if err := writeFile(path, data); err != nil {
		return errs.Wrap(errs.IOFailure, err, "write %s", path)
	}
	f.logger.WithFields(logrus.Fields{"symbol": symbol, "path": path}).Info("repaired dataset written")
	return nil
}

func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
