package logfilewriter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/uber/doc-lsp/src/dlsp/internal/fs"
	"github.com/uber/doc-lsp/src/dlsp/internal/serverinfofile"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const _fmtOutputKey = "output:%s:%s"

// Params define the dependencies for SetupOutputWriter.
type Params struct {
	FS             fs.DlspFS
	ServerInfoFile serverinfofile.ServerInfoFile
}

// SetupOutputWriter creates a writer for human readable output in a temporary file, for reference by the user.
// Each build agent gets its own file to collect its stderr independently of overall server logging.
// The file path is stored in the server info file under the given name and id, and both are removed on Close.
func SetupOutputWriter(p Params, name string, id string) (io.WriteCloser, error) {
	logsDirPath := filepath.Join(os.TempDir(), name)
	if err := p.FS.MkdirAll(logsDirPath); err != nil {
		return nil, err
	}

	logFile, err := p.FS.TempFile(logsDirPath, id+"-*.log")
	if err != nil {
		return nil, err
	}

	// IDE can tail the file by getting the file path from the server info file.
	key := fmt.Sprintf(_fmtOutputKey, name, id)
	if err := p.ServerInfoFile.UpdateField(key, logFile.Name()); err != nil {
		logFile.Close()
		p.FS.Remove(logFile.Name())
		return nil, err
	}

	// Write via a logger for formatting, timestamp, and performance/buffering.
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(logFile),
		zap.InfoLevel,
	)

	return &loggerWriter{
		logger: zap.New(core).Sugar(),
		close: func() error {
			return multierr.Combine(
				logFile.Close(),
				p.FS.Remove(logFile.Name()),
				p.ServerInfoFile.RemoveField(key),
			)
		},
	}, nil
}

type loggerWriter struct {
	logger    *zap.SugaredLogger
	close     func() error
	closeOnce sync.Once
}

// Write implements the io.Writer interface by sending data to the given logger.
func (o *loggerWriter) Write(p []byte) (n int, err error) {
	// Incoming data may contain multiple lines, including blank ones.
	// Split and log each line individually.
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if len(line) > 0 {
			o.logger.Info(line)
		}
	}

	return len(p), nil
}

// Close flushes the logger and removes the backing file.
func (o *loggerWriter) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.logger.Sync()
		if o.close != nil {
			err = o.close()
		}
	})
	return err
}
