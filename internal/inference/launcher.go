package inference

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed bridge.py
var bridgeScript []byte

const (
	bridgeScriptName = "crossvoice_bridge.py"

	launcherPython = "python"
	launcherUVX    = "uvx"

	cudaIndexURL   = "https://download.pytorch.org/whl/cu128"
	pypiIndexURL   = "https://pypi.org/simple"
	uvxPythonEntry = "python"
)

// bridgePackages is the runtime stack an AutoVC checkout needs when the
// bridge runs through uvx.
var bridgePackages = []string{
	"torch",
	"numpy",
	"scipy",
	"librosa",
	"soundfile",
	"webrtcvad",
	"tqdm",
	"msgpack",
}

// LaunchOptions describes how the Python process is started.
type LaunchOptions struct {
	// Launcher is "python" or "uvx".
	Launcher string
	// Python is the interpreter used by the python launcher.
	Python string
	// ModelDir is the working directory of the process.
	ModelDir string
	// WorkDir receives the bridge script.
	WorkDir string
	// CUDAIndex installs CUDA torch wheels when launching through uvx.
	CUDAIndex     bool
	ExtraPackages []string
}

// writeScript drops the embedded bridge into workDir and returns its path.
func writeScript(workDir string) (string, error) {
	if strings.TrimSpace(workDir) == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create bridge work dir: %w", err)
	}
	path := filepath.Join(workDir, bridgeScriptName)
	if err := os.WriteFile(path, bridgeScript, 0o644); err != nil {
		return "", fmt.Errorf("write bridge script: %w", err)
	}
	return path, nil
}

// command returns the program and arguments that run scriptPath.
func (o LaunchOptions) command(scriptPath string) (string, []string, error) {
	switch strings.ToLower(strings.TrimSpace(o.Launcher)) {
	case "", launcherPython:
		python := strings.TrimSpace(o.Python)
		if python == "" {
			python = "python3"
		}
		return python, []string{"-u", scriptPath}, nil
	case launcherUVX:
		// --refresh keeps uvx from reusing a stale environment.
		args := []string{"--refresh", "--quiet"}
		for _, pkg := range append(append([]string(nil), bridgePackages...), o.ExtraPackages...) {
			if pkg = strings.TrimSpace(pkg); pkg != "" {
				args = append(args, "--with", pkg)
			}
		}
		if o.CUDAIndex {
			args = append(args, "--index-url", cudaIndexURL, "--extra-index-url", pypiIndexURL)
		}
		args = append(args, uvxPythonEntry, "-u", scriptPath)
		return launcherUVX, args, nil
	default:
		return "", nil, fmt.Errorf("unsupported launcher %q", o.Launcher)
	}
}

// environ returns the process environment for the bridge.
func (o LaunchOptions) environ() []string {
	env := os.Environ()
	env = append(env, "PYTHONUNBUFFERED=1")
	// AutoVC checkpoints pickle full objects; torch >= 2.6 refuses them by default.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		env = append(env, "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	return env
}
