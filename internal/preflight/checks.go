package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// CheckCoordinator verifies that the coordinator answers HTTP requests. Any
// response counts as reachable; only transport failures fail the check.
func CheckCoordinator(ctx context.Context, baseURL string) Result {
	const name = "Coordinator"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", base, err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (unreachable: %v)", base, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("%s (server error %d)", base, resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", base)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
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
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}
