package sinks

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/david-fong/capswalk-sub001/logging"
)

// Build constructs the sinks enabled in cfg. Console output goes to stdout.
// The returned closer releases any files Build opened and is safe to call
// after the router has closed its sinks.
func Build(cfg logging.Config, stdout io.Writer) ([]logging.NamedSink, func() error, error) {
	var (
		named []logging.NamedSink
		files []*os.File
	)
	closer := func() error {
		var firstErr error
		for _, f := range files {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, name := range cfg.EnabledSinks {
		switch name {
		case logging.SinkConsole:
			named = append(named, logging.NamedSink{Name: name, Sink: NewConsoleSink(stdout, cfg.Console)})
		case logging.SinkJSON:
			var w io.Writer = stdout
			if cfg.JSON.FilePath != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.JSON.FilePath), 0o755); err != nil {
					_ = closer()
					return nil, nil, fmt.Errorf("create log dir: %w", err)
				}
				f, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					_ = closer()
					return nil, nil, fmt.Errorf("open json log: %w", err)
				}
				files = append(files, f)
				w = f
			}
			named = append(named, logging.NamedSink{Name: name, Sink: NewJSON(w, cfg.JSON.FlushInterval)})
		case logging.SinkMemory:
			named = append(named, logging.NamedSink{Name: name, Sink: NewMemorySink()})
		default:
			_ = closer()
			return nil, nil, fmt.Errorf("unknown log sink %q", name)
		}
	}
	return named, closer, nil
}
