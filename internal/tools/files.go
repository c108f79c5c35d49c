package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/atinylittleshell/farcode/internal/pathsandbox"
	"github.com/gobwas/glob"
)

const (
	// maxReadLen is the largest file content returned before middle
	// truncation is applied.
	maxReadLen = 100000

	maxSearchResults = 1000
)

// FileTools returns the file tools confined to resolver's base directory.
func FileTools(resolver *pathsandbox.Resolver) []Tool {
	return []Tool{
		&ListDirectoryTool{resolver: resolver},
		&ReadFileTool{resolver: resolver},
		&WriteFileTool{resolver: resolver},
		&CopyFileTool{resolver: resolver},
		&MoveFileTool{resolver: resolver},
		&DeleteFileTool{resolver: resolver},
		&FileSearchTool{resolver: resolver},
	}
}

// resolve maps a path argument into the sandbox. The returned text is the
// message for the model when the path is rejected.
func resolve(resolver *pathsandbox.Resolver, param, value string) (string, string) {
	resolved, err := resolver.Resolve(value)
	switch {
	case err == nil:
		return resolved, ""
	case errors.Is(err, pathsandbox.ErrEscape):
		return "", errorText("Access denied to %s: %s. Permission granted exclusively to the current working directory", param, value)
	default:
		return "", errorText("Could not resolve %s '%s': %v", param, value, err)
	}
}

type ListDirectoryTool struct {
	resolver *pathsandbox.Resolver
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return "List the files and directories in a directory inside the current working directory."
}

func (t *ListDirectoryTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"dir_path": stringParam("Subdirectory to list. Defaults to the current working directory."),
	})
}

func (t *ListDirectoryTool) Invoke(ctx context.Context, args string) string {
	var params struct {
		DirPath string `json:"dir_path"`
	}
	if err := decodeArgs(args, &params); err != nil {
		return errorText("%v", err)
	}
	if params.DirPath == "" {
		params.DirPath = "."
	}

	dir, denied := resolve(t.resolver, "dir_path", params.DirPath)
	if denied != "" {
		return denied
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errorText("no such directory: %s", params.DirPath)
		}
		return errorText("failed to list directory: %v", err)
	}

	listing := struct {
		Files       []string `json:"files"`
		Directories []string `json:"directories"`
	}{Files: []string{}, Directories: []string{}}

	for _, entry := range entries {
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil {
			// Dangling links are listed as files.
			listing.Files = append(listing.Files, entry.Name())
			continue
		}
		if info.IsDir() {
			listing.Directories = append(listing.Directories, entry.Name())
		} else {
			listing.Files = append(listing.Files, entry.Name())
		}
	}
	sort.Strings(listing.Files)
	sort.Strings(listing.Directories)

	data, _ := json.Marshal(listing)
	return string(data)
}

type ReadFileTool struct {
	resolver *pathsandbox.Resolver
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file from the current working directory. Only accessible within the directory where the agent is started."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"file_path": stringParam("Path of the file to read, relative to the working directory"),
	}, "file_path")
}

func (t *ReadFileTool) Invoke(ctx context.Context, args string) string {
	var params struct {
		FilePath string `json:"file_path"`
	}
	if err := decodeArgs(args, &params); err != nil {
		return errorText("%v", err)
	}
	if params.FilePath == "" {
		return errorText("read_file requires 'file_path'")
	}

	path, denied := resolve(t.resolver, "file_path", params.FilePath)
	if denied != "" {
		return denied
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errorText("no such file or directory: %s", params.FilePath)
		}
		return errorText("failed to read file: %v", err)
	}
	if !info.Mode().IsRegular() {
		return errorText("Path is not a file: %s", params.FilePath)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return errorText("failed to read file: %v", err)
	}

	text := string(content)
	if len(text) > maxReadLen {
		text = truncateFromMiddle(strings.Split(text, "\n"), maxReadLen)
	}
	return text
}

// truncateFromMiddle keeps whole lines from the start and the end of the
// content and replaces the rest with a marker.
func truncateFromMiddle(lines []string, maxLen int) string {
	const marker = "(truncated)"
	half := (maxLen - len(marker) - 2) / 2

	head, headLen := 0, 0
	for head < len(lines) && headLen+len(lines[head])+1 <= half {
		headLen += len(lines[head]) + 1
		head++
	}

	tail, tailLen := 0, 0
	for tail < len(lines)-head && tailLen+len(lines[len(lines)-1-tail])+1 <= half {
		tailLen += len(lines[len(lines)-1-tail]) + 1
		tail++
	}

	var b strings.Builder
	for _, line := range lines[:head] {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(marker)
	for _, line := range lines[len(lines)-tail:] {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

type WriteFileTool struct {
	resolver *pathsandbox.Resolver
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write text to a file in the current working directory, creating parent directories as needed."
}

func (t *WriteFileTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"file_path": stringParam("Path of the file to write, relative to the working directory"),
		"text":      stringParam("Text to write to the file"),
		"append": map[string]any{
			"type":        "boolean",
			"description": "Append to the file instead of overwriting it",
		},
	}, "file_path", "text")
}

func (t *WriteFileTool) Invoke(ctx context.Context, args string) string {
	var params struct {
		FilePath string `json:"file_path"`
		Text     string `json:"text"`
		Append   bool   `json:"append"`
	}
	if err := decodeArgs(args, &params); err != nil {
		return errorText("%v", err)
	}
	if params.FilePath == "" {
		return errorText("write_file requires 'file_path'")
	}

	path, denied := resolve(t.resolver, "file_path", params.FilePath)
	if denied != "" {
		return denied
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errorText("failed to write file: %v", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if params.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return errorText("failed to write file: %v", err)
	}
	if _, err := f.WriteString(params.Text); err != nil {
		f.Close()
		return errorText("failed to write file: %v", err)
	}
	if err := f.Close(); err != nil {
		return errorText("failed to write file: %v", err)
	}

	return fmt.Sprintf("File written successfully to %s.", params.FilePath)
}

// transferParams are the arguments of copy_file and move_file.
type transferParams struct {
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
}

func transferSchema(verb string) map[string]any {
	return objectSchema(map[string]any{
		"source_path":      stringParam("Path of the file to " + verb),
		"destination_path": stringParam("New path for the file"),
	}, "source_path", "destination_path")
}

// resolveTransfer resolves both paths and checks the source is a file.
func resolveTransfer(resolver *pathsandbox.Resolver, args string) (src, dst string, params transferParams, msg string) {
	if err := decodeArgs(args, &params); err != nil {
		return "", "", params, errorText("%v", err)
	}
	if params.SourcePath == "" || params.DestinationPath == "" {
		return "", "", params, errorText("'source_path' and 'destination_path' are required")
	}

	if src, msg = resolve(resolver, "source_path", params.SourcePath); msg != "" {
		return "", "", params, msg
	}
	if dst, msg = resolve(resolver, "destination_path", params.DestinationPath); msg != "" {
		return "", "", params, msg
	}

	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", params, errorText("no such file or directory: %s", params.SourcePath)
		}
		return "", "", params, errorText("%v", err)
	}
	if !info.Mode().IsRegular() {
		return "", "", params, errorText("Path is not a file: %s", params.SourcePath)
	}

	return src, dst, params, ""
}

type CopyFileTool struct {
	resolver *pathsandbox.Resolver
}

func (t *CopyFileTool) Name() string { return "copy_file" }

func (t *CopyFileTool) Description() string {
	return "Create a copy of a file in a specified location inside the current working directory."
}

func (t *CopyFileTool) Parameters() map[string]any { return transferSchema("copy") }

func (t *CopyFileTool) Invoke(ctx context.Context, args string) string {
	src, dst, params, msg := resolveTransfer(t.resolver, args)
	if msg != "" {
		return msg
	}

	if err := copyFile(src, dst); err != nil {
		return errorText("%v", err)
	}
	return fmt.Sprintf("File copied successfully from %s to %s.", params.SourcePath, params.DestinationPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type MoveFileTool struct {
	resolver *pathsandbox.Resolver
}

func (t *MoveFileTool) Name() string { return "move_file" }

func (t *MoveFileTool) Description() string {
	return "Move or rename a file from one location to another inside the current working directory."
}

func (t *MoveFileTool) Parameters() map[string]any { return transferSchema("move") }

func (t *MoveFileTool) Invoke(ctx context.Context, args string) string {
	src, dst, params, msg := resolveTransfer(t.resolver, args)
	if msg != "" {
		return msg
	}

	if err := os.Rename(src, dst); err != nil {
		return errorText("%v", err)
	}
	return fmt.Sprintf("File moved successfully from %s to %s.", params.SourcePath, params.DestinationPath)
}

type DeleteFileTool struct {
	resolver *pathsandbox.Resolver
}

func (t *DeleteFileTool) Name() string { return "delete_file" }

func (t *DeleteFileTool) Description() string {
	return "Delete a file inside the current working directory."
}

func (t *DeleteFileTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"file_path": stringParam("Path of the file to delete"),
	}, "file_path")
}

func (t *DeleteFileTool) Invoke(ctx context.Context, args string) string {
	var params struct {
		FilePath string `json:"file_path"`
	}
	if err := decodeArgs(args, &params); err != nil {
		return errorText("%v", err)
	}
	if params.FilePath == "" {
		return errorText("delete_file requires 'file_path'")
	}

	// The link itself is removed, never its target, so resolve the parent
	// and keep the final name as given.
	dir, denied := resolve(t.resolver, "file_path", filepath.Dir(params.FilePath))
	if denied != "" {
		return denied
	}
	path := filepath.Join(dir, filepath.Base(params.FilePath))
	if !pathsandbox.Within(path, t.resolver.Base()) || path == t.resolver.Base() {
		return errorText("Access denied to file_path: %s. Permission granted exclusively to the current working directory", params.FilePath)
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errorText("no such file or directory: %s", params.FilePath)
		}
		return errorText("%v", err)
	}
	if info.IsDir() {
		return errorText("Path is not a file: %s", params.FilePath)
	}

	if err := os.Remove(path); err != nil {
		return errorText("%v", err)
	}
	return fmt.Sprintf("File deleted successfully: %s.", params.FilePath)
}

type FileSearchTool struct {
	resolver *pathsandbox.Resolver
}

func (t *FileSearchTool) Name() string { return "file_search" }

func (t *FileSearchTool) Description() string {
	return "Recursively search for files whose name matches a glob pattern, starting from a directory inside the current working directory."
}

func (t *FileSearchTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"dir_path": stringParam("Subdirectory to search in. Defaults to the current working directory."),
		"pattern":  stringParam("Glob pattern matched against file names, e.g. '*.go'"),
	}, "pattern")
}

func (t *FileSearchTool) Invoke(ctx context.Context, args string) string {
	var params struct {
		DirPath string `json:"dir_path"`
		Pattern string `json:"pattern"`
	}
	if err := decodeArgs(args, &params); err != nil {
		return errorText("%v", err)
	}
	if params.DirPath == "" {
		params.DirPath = "."
	}
	if params.Pattern == "" {
		return errorText("file_search requires 'pattern'")
	}

	matcher, err := glob.Compile(params.Pattern)
	if err != nil {
		return errorText("invalid pattern '%s': %v", params.Pattern, err)
	}

	root, denied := resolve(t.resolver, "dir_path", params.DirPath)
	if denied != "" {
		return denied
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return errorText("no such directory: %s", params.DirPath)
	}

	var matches []string
	limited := false
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtrees are skipped.
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root || d.IsDir() {
			return nil
		}
		if matcher.Match(d.Name()) {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			matches = append(matches, rel)
			if len(matches) >= maxSearchResults {
				limited = true
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return errorText("%v", err)
	}

	if len(matches) == 0 {
		return fmt.Sprintf("No files found for pattern %s in directory %s", params.Pattern, params.DirPath)
	}
	sort.Strings(matches)
	result := strings.Join(matches, "\n")
	if limited {
		result += fmt.Sprintf("\n... (stopped after %d matches)", maxSearchResults)
	}
	return result
}
