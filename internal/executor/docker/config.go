package docker

// Config holds the configuration for the Node.js sandbox.
type Config struct {
	// Image is the Docker image to use for execution.
	Image string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
}

// DefaultConfig provides sensible defaults for a Node.js sandbox.
// The execution timeout is not part of it: the Engine's context carries it.
func DefaultConfig() Config {
	return Config{
		Image: "node:22-alpine",
		// 128 MB memory limit
		MemoryLimit: 128 * 1024 * 1024,
		// 0.5 CPU shares
		CPULimit: 0.5,
		PoolSize: 2,
	}
}
