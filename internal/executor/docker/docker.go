// Package docker runs the "node" language inside throwaway Docker
// containers.
//
// Containers come pre-warmed from a Pool, run one program each, and are
// force-removed afterwards. They have no network, a read-only root
// filesystem and run as nobody.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/capture"
	"github.com/sakif/js-playground/internal/executor"
)

// Language is the registry key of this handler.
const Language = "node"

// maxStderr bounds how much of stderr ends up in a failure message.
const maxStderr = 4 << 10

// Handler implements executor.Handler using Docker.
type Handler struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

var _ executor.Handler = (*Handler)(nil)

// New connects to the daemon, makes sure the image is present and starts
// the container pool. It fails fast when the daemon is unreachable.
func New(cfg Config, logger *slog.Logger, observer PoolObserver) (*Handler, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	if _, err := io.Copy(io.Discard, reader); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	logger.Info("docker image is ready", slog.String("image", cfg.Image))

	h := &Handler{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   NewPool(cli, cfg, logger, observer),
	}
	h.pool.Start()

	return h, nil
}

// Language implements executor.Handler.
func (h *Handler) Language() string {
	return Language
}

// Close shuts down the pool and the docker client.
func (h *Handler) Close() error {
	h.pool.Stop()
	return h.cli.Close()
}

// Execute runs source with `node -e` in a pooled container. Console lines
// are forwarded to console as they arrive.
func (h *Handler) Execute(ctx context.Context, source string, console capture.Sink) error {
	start := time.Now()

	containerID, err := h.pool.GetContainer(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return interrupted(ctxErr, time.Since(start))
		}
		return fmt.Errorf("failed to get container from pool: %w", err)
	}

	// A container runs exactly one program.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			h.logger.Error("failed to remove container", slog.String("id", containerID), slog.String("error", err.Error()))
		}
	}()

	execResp, err := h.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"node", "-e", wrapper, source},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return interrupted(ctxErr, time.Since(start))
		}
		return fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := h.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return interrupted(ctxErr, time.Since(start))
		}
		return fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	stdout := &consoleWriter{sink: console}
	var stderr bytes.Buffer

	done := make(chan error, 1)
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, err := stdcopy.StdCopy(stdout, &stderr, attachResp.Reader)
		done <- err
	}()

	var copyErr error
	select {
	case copyErr = <-done:
	case <-ctx.Done():
		// Closing the hijacked connection unblocks StdCopy; the deferred
		// remove kills the process.
		attachResp.Close()
		<-done
		return interrupted(ctx.Err(), time.Since(start))
	}

	if err := streamResult(copyErr, stdout); err != nil {
		return err
	}

	inspectResp, err := h.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return fmt.Errorf("failed to inspect exec: %w", err)
	}
	return exitResult(inspectResp, stderr.String())
}

// streamResult decides what the end of the output stream means. A refused
// line (output limit) is the program's fault; any other read error means
// the output may be incomplete and the run cannot be trusted.
func streamResult(copyErr error, stdout *consoleWriter) error {
	if stdout.err != nil {
		return apperror.RuntimeFailure(stdout.err.Error())
	}
	if copyErr != nil {
		return fmt.Errorf("reading exec output: %w", copyErr)
	}
	if err := stdout.Flush(); err != nil {
		return apperror.RuntimeFailure(err.Error())
	}
	return nil
}

// exitResult maps the finished exec to the handler's result. An exec that
// still runs after its output closed has no meaningful exit code.
func exitResult(inspect container.ExecInspect, stderr string) error {
	if inspect.Running {
		return errors.New("exec output closed while the process was still running")
	}
	if inspect.ExitCode != 0 {
		return exitFailure(inspect.ExitCode, stderr)
	}
	return nil
}

func interrupted(err error, elapsed time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.RuntimeFailure(fmt.Sprintf("execution timed out after %s", elapsed.Round(time.Millisecond)))
	}
	return apperror.RuntimeFailure("execution cancelled")
}

// exitFailure prefers what the program said on stderr over the bare code.
func exitFailure(code int, stderr string) error {
	msg := strings.TrimSpace(stderr)
	if len(msg) > maxStderr {
		msg = msg[:maxStderr]
	}
	if msg == "" {
		msg = fmt.Sprintf("process exited with code %d", code)
	}
	return apperror.RuntimeFailure(msg)
}
