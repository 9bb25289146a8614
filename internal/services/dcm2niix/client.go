package dcm2niix

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bidsify/internal/classifier"
	"bidsify/internal/config"
	"bidsify/internal/logging"
	"bidsify/internal/services"
)

const (
	stageName = "converting"

	// SubjectPlaceholder in the filename format is replaced by the subject label.
	SubjectPlaceholder = "{subject}"
)

// Request describes one session conversion.
type Request struct {
	SourceDir string
	OutputDir string
	Subject   string
	Session   string
}

// Result summarizes a completed conversion.
type Result struct {
	SessionDir string
	// Series counts "Convert N DICOM" lines reported by dcm2niix.
	Series int
	// DICOMs sums N across those lines.
	DICOMs int
	// Files lists the regular files present in SessionDir afterwards.
	Files []string
}

// Converter defines the behaviour required by the workflow runner.
type Converter interface {
	Convert(ctx context.Context, req Request) (Result, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger sets the logger receiving converter output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "dcm2niix")
	}
}

// Client wraps dcm2niix CLI interactions.
type Client struct {
	binary           string
	compressionLevel int
	filenameFormat   string
	sidecar          bool
	timeout          time.Duration
	exec             Executor
	logger           *slog.Logger
}

// New constructs a dcm2niix client from converter settings.
func New(settings config.Converter, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(settings.Binary)
	if binary == "" {
		return nil, errors.New("dcm2niix binary required")
	}
	level := settings.CompressionLevel
	if level < 1 || level > 9 {
		return nil, fmt.Errorf("dcm2niix compression level %d out of range 1-9", level)
	}
	format := strings.TrimSpace(settings.FilenameFormat)
	if format == "" {
		format = SubjectPlaceholder + "_%d_%a_%c"
	}
	client := &Client{
		binary:           binary,
		compressionLevel: level,
		filenameFormat:   format,
		sidecar:          settings.BIDSSidecar,
		timeout:          time.Duration(settings.TimeoutSeconds) * time.Second,
		exec:             commandExecutor{},
		logger:           logging.NewComponentLogger(nil, "dcm2niix"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Args returns the dcm2niix argument list for a session directory.
func (c *Client) Args(subjectLabel, sessionDir, sourceDir string) []string {
	sidecar := "n"
	if c.sidecar {
		sidecar = "y"
	}
	return []string{
		"-z", "y",
		"-" + strconv.Itoa(c.compressionLevel),
		"-b", sidecar,
		"-f", strings.ReplaceAll(c.filenameFormat, SubjectPlaceholder, subjectLabel),
		"-o", sessionDir,
		sourceDir,
	}
}

// Convert runs dcm2niix for one session, writing into
// outputDir/<subject-label>/<session>.
func (c *Client) Convert(ctx context.Context, req Request) (Result, error) {
	ctx = services.WithStage(ctx, stageName)
	logger := logging.WithContext(ctx, c.logger)

	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Session) == "" {
		return Result{}, services.Wrap(services.ErrValidation, stageName, "validate request", "subject and session are required", nil)
	}
	info, err := os.Stat(req.SourceDir)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, stageName, "inspect source", fmt.Sprintf("DICOM source %s is not accessible", req.SourceDir), err)
	}
	if !info.IsDir() {
		return Result{}, services.Wrap(services.ErrExternalTool, stageName, "inspect source", fmt.Sprintf("DICOM source %s is not a directory", req.SourceDir), nil)
	}

	label := classifier.SubjectLabel(req.Subject)
	result := Result{SessionDir: classifier.SessionDir(req.OutputDir, req.Subject, req.Session)}
	if _, err := os.Stat(result.SessionDir); err == nil {
		logging.WarnWithContext(logger, "session directory already exists", "session_dir_exists",
			logging.String("session_dir", result.SessionDir),
			logging.String(logging.FieldImpact, "converted files are added alongside existing content"),
			logging.String(logging.FieldErrorHint, "remove the directory to start the session from scratch"),
		)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return result, services.Wrap(services.ErrFilesystem, stageName, "prepare output", result.SessionDir, err)
	}
	if err := os.MkdirAll(result.SessionDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrFilesystem, stageName, "prepare output", result.SessionDir, err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := c.Args(label, result.SessionDir, req.SourceDir)
	logger.Info("starting conversion",
		logging.String("source_dir", req.SourceDir),
		logging.String("session_dir", result.SessionDir),
		logging.Strings("args", args),
	)

	var (
		mu       sync.Mutex
		lastErrs []string
	)
	started := time.Now()
	runErr := c.exec.Run(runCtx, c.binary, args, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if n, ok := parseConvertLine(line); ok {
			result.Series++
			result.DICOMs += n
		}
		if strings.HasPrefix(line, "Error") {
			lastErrs = append(lastErrs, line)
		}
		logger.Debug("dcm2niix output", logging.String("line", line))
	})
	if runErr != nil {
		msg := "dcm2niix exited with an error"
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			msg = fmt.Sprintf("dcm2niix timed out after %s", c.timeout)
		}
		if len(lastErrs) > 0 {
			msg += ": " + lastErrs[len(lastErrs)-1]
		}
		return result, services.Wrap(services.ErrExternalTool, stageName, "run dcm2niix", msg, runErr)
	}

	files, err := listFiles(result.SessionDir)
	if err != nil {
		return result, services.Wrap(services.ErrFilesystem, stageName, "inspect output", result.SessionDir, err)
	}
	if len(files) == 0 {
		return result, services.Wrap(
			services.ErrExternalTool,
			stageName,
			"inspect output",
			fmt.Sprintf("dcm2niix produced no files in %s; check that %s holds DICOM data", result.SessionDir, req.SourceDir),
			nil,
		)
	}
	result.Files = files

	logger.Info("conversion completed",
		logging.Int("series", result.Series),
		logging.Int("dicoms", result.DICOMs),
		logging.Int("files", len(files)),
		logging.Duration("duration", time.Since(started)),
	)
	return result, nil
}

// parseConvertLine extracts N from "Convert N DICOM as ...".
func parseConvertLine(line string) (int, bool) {
	rest, ok := strings.CutPrefix(line, "Convert ")
	if !ok {
		return 0, false
	}
	countText, tail, ok := strings.Cut(rest, " ")
	if !ok || !strings.HasPrefix(tail, "DICOM") {
		return 0, false
	}
	n, err := strconv.Atoi(countText)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	forward := func(line string) {
		if onLine != nil {
			onLine(line)
			return
		}
		fmt.Fprintln(os.Stderr, line)
	}
	scan := func(r io.Reader) func() error {
		return func() error {
			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				forward(scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				// keep the pipe drained so the process cannot block on a full buffer
				_, _ = io.Copy(io.Discard, r)
				return err
			}
			return nil
		}
	}

	var scanners errgroup.Group
	scanners.Go(scan(stdout))
	scanners.Go(scan(stderr))
	if err := scanners.Wait(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
