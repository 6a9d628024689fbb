// ABOUTME: The read_file tool: serves UTF-8 text files from a sandboxed base directory.
// ABOUTME: Rejects absolute paths, traversal, and symlink escapes; caps bytes read.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
)

const defaultMaxReadBytes = 200_000

// Error messages here are part of the tool contract.
var (
	errInvalidPath = errors.New("Invalid path (absolute paths and traversal are not allowed)")
	errEscapesBase = errors.New("Path escapes base directory")
	errNotFound    = errors.New("File not found")
)

// ReadFileTool returns the read_file tool spec and a handler sandboxed to baseDir.
func ReadFileTool(baseDir string) (Spec, Handler) {
	spec := Spec{
		Name:        "read_file",
		Description: "Read a UTF-8 text file from the server's /app directory (relative path).",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Relative path under /app"},
				"max_bytes": {
					"type": "integer",
					"description": "Max bytes to read",
					"minimum": 1,
					"default": 200000
				}
			},
			"required": ["path"],
			"additionalProperties": false
		}`),
		OutputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "array"},
				"isError": {"type": "boolean"}
			},
			"required": [],
			"additionalProperties": false
		}`),
	}

	reader := &fileReader{baseDir: baseDir}

	handler := func(ctx context.Context, args map[string]any) (Result, error) {
		path, ok := args["path"].(string)
		if !ok {
			return ErrorResult("Invalid params: 'path' must be a string", nil), nil
		}

		maxBytes, err := intArg(args, "max_bytes", defaultMaxReadBytes)
		if err != nil {
			return ErrorResult("Invalid params: 'max_bytes' must be an integer", nil), nil
		}

		text, size, err := reader.read(path, maxBytes)
		if err != nil {
			return ErrorResult(err.Error(), map[string]any{"path": path}), nil
		}

		metadata := map[string]any{"path": path, "size": size}
		return TextResult(text, metadata), nil
	}

	return spec, handler
}

// intArg fetches an optional integer argument. JSON numbers arrive as float64;
// fractional values are rejected.
func intArg(args map[string]any, key string, def int) (int, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%q is not an integer", key)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%q is not an integer", key)
	}
}

type fileReader struct {
	baseDir string
}

// read returns the decoded file content and the number of bytes actually read.
func (f *fileReader) read(rel string, maxBytes int) (string, int, error) {
	target, err := f.resolve(rel)
	if err != nil {
		return "", 0, err
	}

	fh, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", 0, errNotFound
		}
		return "", 0, err
	}
	defer fh.Close()

	if maxBytes < 1 {
		maxBytes = 1
	}
	data, err := io.ReadAll(io.LimitReader(fh, int64(maxBytes)))
	if err != nil {
		return "", 0, err
	}

	// Invalid UTF-8 sequences are replaced, never rejected
	return strings.ToValidUTF8(string(data), "�"), len(data), nil
}

// resolve maps a relative request path to an absolute path inside the base
// directory. Symlinks are resolved before the containment check so a link
// pointing outside the sandbox cannot smuggle reads.
func (f *fileReader) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) || hasTraversal(rel) {
		return "", errInvalidPath
	}

	base, err := filepath.EvalSymlinks(f.baseDir)
	if err != nil {
		base = filepath.Clean(f.baseDir)
	}

	candidate := filepath.Join(base, rel)
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		// The final component may not exist; resolve its parent instead so
		// missing files still get containment-checked.
		dir, dirErr := filepath.EvalSymlinks(filepath.Dir(candidate))
		if dirErr != nil {
			resolved = candidate
		} else {
			resolved = filepath.Join(dir, filepath.Base(candidate))
		}
	}

	if resolved != base && !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return "", errEscapesBase
	}
	return resolved, nil
}

func hasTraversal(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
