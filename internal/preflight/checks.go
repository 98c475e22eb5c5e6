package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"crossvoice/internal/dataset"
	"crossvoice/internal/deps"
	"crossvoice/internal/metadata"
)

// CheckLauncher verifies that the binary used to start the inference bridge
// is on PATH. For the python launcher it also reports the interpreter version.
func CheckLauncher(ctx context.Context, launcher, python string) Result {
	reqs := deps.LauncherRequirements(launcher, python)
	status := deps.CheckBinaries(reqs)[0]
	if !status.Available {
		return Result{Name: status.Name, Detail: status.Detail}
	}
	if status.Name != "Python" {
		return Result{Name: status.Name, Passed: true, Detail: status.Command}
	}
	version, err := deps.PythonVersion(ctx, status.Command)
	if err != nil {
		return Result{Name: status.Name, Detail: err.Error()}
	}
	return Result{Name: status.Name, Passed: true, Detail: fmt.Sprintf("%s (%s)", status.Command, version)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckDirectoryReadable verifies that the directory exists and can be listed.
func CheckDirectoryReadable(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

func checkDirectory(name, path string, mode uint32, ok string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, ok)}
}

// CheckFile verifies that path is a readable regular file.
func CheckFile(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.Mode().IsRegular() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a regular file)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, formatSize(info.Size()))}
}

// CheckMetadata parses the speaker table.
func CheckMetadata(path string) Result {
	const name = "Speaker metadata"
	if res := CheckFile(name, path); !res.Passed {
		return res
	}
	table, err := metadata.Load(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if table.Len() == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no speakers)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d speakers)", path, table.Len())}
}

// CheckDataset lists the dataset and reports the size of its test split.
func CheckDataset(root, layout string, testSize int) Result {
	const name = "Dataset"
	if res := CheckDirectoryReadable(name, root); !res.Passed {
		return res
	}
	parsed, err := dataset.ParseLayout(layout)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	split, err := dataset.Load(root, parsed, testSize)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d speakers, %d test samples)",
		root, len(dataset.Speakers(split.Test)), len(split.Test))}
}

// CheckOutputRoot verifies that artifacts can be written below path. When
// the directory is missing and may be created, the nearest existing parent
// must be writable instead.
func CheckOutputRoot(name, path string, createDirs bool) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if _, err := os.Stat(path); err == nil || !os.IsNotExist(err) || !createDirs {
		return CheckDirectoryAccess(name, path)
	}
	parent := filepath.Dir(path)
	for {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
	}
	if err := unix.Access(parent, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, parent, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
