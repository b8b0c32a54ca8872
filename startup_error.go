package svckit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// writeStartupError records err where an operator can find it after the
// process has lost its stdio (detached daemon or service host). The file
// holds only the most recent failure.
func writeStartupError(dir, name string, err error) {
	if dir == "" {
		return
	}
	if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
		return
	}
	path := filepath.Join(dir, name+".startup-error.txt")
	content := fmt.Sprintf("%s %v\n", time.Now().Format(time.RFC3339), err)
	os.WriteFile(path, []byte(content), 0644)
}
