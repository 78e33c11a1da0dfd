package plugins

import (
	"context"
	"fmt"
	"os"
)

// FilePlugin is a second illustrative builtin, the kind of local-effect
// step runbooks often need between shell steps: writing or appending a
// marker/log file without spawning a subprocess.
type FilePlugin struct{}

func (FilePlugin) Execute(_ context.Context, function string, params map[string]any, _ map[string]any) (string, error) {
	path, _ := params["path"].(string)
	if path == "" {
		return "", fmt.Errorf("schema error: %q parameter is required", "path")
	}

	switch function {
	case "write":
		content, _ := params["content"].(string)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
	case "append":
		content, _ := params["content"].(string)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return "", err
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return "", err
		}
		return fmt.Sprintf("appended %d bytes to %s", len(content), path), nil
	default:
		return "", fmt.Errorf("file plugin has no function %q", function)
	}
}
