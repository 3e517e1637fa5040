package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// PoolObserver receives pool health updates (e.g. Prometheus gauges).
type PoolObserver interface {
	SetPoolReady(n int)
	IncPoolFailure()
}

type noopObserver struct{}

func (noopObserver) SetPoolReady(int) {}
func (noopObserver) IncPoolFailure()  {}

// Pool manages a pool of pre-warmed Node.js containers. Each container is
// handed out once; the caller removes it after use.
type Pool struct {
	cli        client.APIClient
	config     Config
	logger     *slog.Logger
	observer   PoolObserver
	containers chan string
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewPool initializes a new container pool wrapper.
func NewPool(cli client.APIClient, cfg Config, logger *slog.Logger, observer PoolObserver) *Pool {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Pool{
		cli:        cli,
		config:     cfg,
		logger:     logger,
		observer:   observer,
		containers: make(chan string, cfg.PoolSize),
		done:       make(chan struct{}),
	}
}

// Start begins filling the pool with fresh containers in the background.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting docker container pool manager", slog.Int("poolSize", p.config.PoolSize))
		p.wg.Add(1)
		go p.manager()
	})
}

// Stop shuts down the manager and removes every pre-warmed container.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down docker container pool")
		close(p.done)
		p.wg.Wait()

		for {
			select {
			case id := <-p.containers:
				p.removeContainer(id)
			default:
				p.observer.SetPoolReady(0)
				return
			}
		}
	})
}

// GetContainer returns a ready-to-use container ID from the pool.
// It blocks until one is available or the context is canceled.
func (p *Pool) GetContainer(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		p.observer.SetPoolReady(len(p.containers))
		return id, nil
	case <-p.done:
		return "", fmt.Errorf("docker pool is stopped")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// manager continuously ensures the pool is at capacity.
func (p *Pool) manager() {
	defer p.wg.Done()

	for {
		if len(p.containers) >= cap(p.containers) {
			if !p.wait(100 * time.Millisecond) {
				return
			}
			continue
		}

		id, err := p.createContainer()
		if err != nil {
			p.observer.IncPoolFailure()
			p.logger.Error("failed to create pre-warmed container", slog.String("error", err.Error()))
			if !p.wait(time.Second) {
				return
			}
			continue
		}

		select {
		case p.containers <- id:
			p.observer.SetPoolReady(len(p.containers))
		case <-p.done:
			p.removeContainer(id)
			return
		}
	}
}

// wait sleeps for d and reports false if the pool was stopped meanwhile.
func (p *Pool) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.done:
		return false
	}
}

// createContainer starts a locked-down container running `sleep infinity`.
func (p *Pool) createContainer() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   p.config.MemoryLimit,
			NanoCPUs: int64(p.config.CPULimit * 1e9),
		},
		ReadonlyRootfs: true,
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image: p.config.Image,
		Cmd:   []string{"sleep", "infinity"},
		User:  "nobody",
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return "", fmt.Errorf("ContainerStart failed: %w", err)
	}

	return resp.ID, nil
}

// removeContainer force removes a container by ID.
func (p *Pool) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Warn("failed to remove container", slog.String("id", id), slog.String("error", err.Error()))
	}
}
