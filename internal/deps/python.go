package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// LauncherRequirements lists the binaries needed to start the inference
// bridge with the given launcher ("python" or "uvx").
func LauncherRequirements(launcher, python string) []Requirement {
	switch strings.ToLower(strings.TrimSpace(launcher)) {
	case "uvx":
		return []Requirement{{
			Name:        "uvx",
			Command:     "uvx",
			Description: "Runs the inference bridge in an ephemeral torch environment",
		}}
	default:
		return []Requirement{{
			Name:        "Python",
			Command:     python,
			Description: "Runs the inference bridge inside the model checkout",
		}}
	}
}

// PythonVersion runs "<python> --version" and returns the reported version,
// e.g. "3.11.9".
func PythonVersion(ctx context.Context, python string) (string, error) {
	python = strings.TrimSpace(python)
	if python == "" {
		return "", fmt.Errorf("python interpreter not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, python, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", python, err)
	}
	text := strings.TrimSpace(string(out))
	version, ok := strings.CutPrefix(text, "Python ")
	if !ok || version == "" {
		return "", fmt.Errorf("%s --version: unexpected output %q", python, text)
	}
	return version, nil
}
