package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxReadFileBytes = 256 * 1024

type readFileInput struct {
	Path string `json:"path"`
}

// NewReadFileTool builds the "read_file" tool, part of the "coding"
// profile (§3.D): reads a file relative to workspaceDir.
func NewReadFileTool(workspaceDir string) *Tool {
	return &Tool{
		Name:        "read_file",
		Description: "Read the contents of a file in the agent's workspace.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			return readWorkspaceFile(workspaceDir, raw)
		},
	}
}

func readWorkspaceFile(workspaceDir string, raw json.RawMessage) (*Result, error) {
	var in readFileInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return ErrorResult(fmt.Sprintf("invalid read_file input: %v", err)), nil
	}
	if in.Path == "" {
		return ErrorResult("path is required"), nil
	}

	resolved, err := resolveInWorkspace(workspaceDir, in.Path)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("stat failed: %v", err)), nil
	}
	if info.IsDir() {
		return ErrorResult(fmt.Sprintf("%s is a directory", in.Path)), nil
	}
	if info.Size() > maxReadFileBytes {
		return ErrorResult(fmt.Sprintf("file too large: %d bytes exceeds %d limit", info.Size(), maxReadFileBytes)), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("read failed: %v", err)), nil
	}
	return NewResult(string(data)), nil
}

type listFilesInput struct {
	Path string `json:"path,omitempty"`
}

// NewListFilesTool builds the "list_files" tool, part of the "coding"
// profile (§3.D): lists one directory level relative to workspaceDir.
func NewListFilesTool(workspaceDir string) *Tool {
	return &Tool{
		Name:        "list_files",
		Description: "List files and directories at a path in the agent's workspace.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string", "description": "defaults to workspace root"}},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (*Result, error) {
			return listWorkspaceFiles(workspaceDir, raw)
		},
	}
}

func listWorkspaceFiles(workspaceDir string, raw json.RawMessage) (*Result, error) {
	var in listFilesInput
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return ErrorResult(fmt.Sprintf("invalid list_files input: %v", err)), nil
		}
	}

	target := workspaceDir
	if in.Path != "" {
		resolved, err := resolveInWorkspace(workspaceDir, in.Path)
		if err != nil {
			return ErrorResult(err.Error()), nil
		}
		target = resolved
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return ErrorResult(fmt.Sprintf("list failed: %v", err)), nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	out, _ := json.Marshal(names)
	return NewResult(string(out)), nil
}

// resolveInWorkspace joins root and rel, rejecting any path that
// escapes root via ".." traversal.
func resolveInWorkspace(root, rel string) (string, error) {
	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, rel)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}
	return joined, nil
}
