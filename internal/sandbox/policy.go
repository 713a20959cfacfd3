package sandbox

import (
	"slices"
	"time"
)

// Policy defines resource limits for sandbox execution.
type Policy struct {
	Timeout          time.Duration // Wall-clock budget per execution
	MaxCallStackSize int           // JS call stack depth before a RangeError
	MaxMemory        string        // Docker memory limit (e.g. "256m")
	Network          bool          // Whether network access is allowed (docker only)
	Images           []string      // Allowed Docker images
	Image            string        // Image used by DockerSandbox
}

// DefaultPolicy returns safe defaults for code execution.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:          2 * time.Second,
		MaxCallStackSize: 2000,
		MaxMemory:        "128m",
		Network:          false,
		Images: []string{
			"node:22-slim",
			"node:20-slim",
		},
		Image: "node:22-slim",
	}
}

// IsImageAllowed checks if an image is on the allowlist.
func (p Policy) IsImageAllowed(image string) bool {
	return slices.Contains(p.Images, image)
}

func (p Policy) timeoutFor(opts ExecOpts) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultPolicy().Timeout
}
