package project

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrContextTooLarge is returned when claimed files exceed the limits.
var ErrContextTooLarge = errors.New("file context exceeds limits")

// FileLimits bounds the file context handed to a provider.
type FileLimits struct {
	MaxFileSize  int64 // per file; larger files are truncated
	MaxTotalSize int64
	MaxFileCount int
}

// DefaultFileLimits returns 100KB per file, 500KB total and 50 files.
func DefaultFileLimits() FileLimits {
	return FileLimits{
		MaxFileSize:  100 * 1024,
		MaxTotalSize: 500 * 1024,
		MaxFileCount: 50,
	}
}

// FileContext renders the current contents of claimed files so a provider
// sees what it is about to change.
type FileContext struct {
	root   string
	limits FileLimits
	files  []contextFile
	logger *slog.Logger
}

type contextFile struct {
	path    string
	content []byte
	binary  bool
}

// NewFileContext creates a file context rooted at the project root.
func (c *Context) NewFileContext() *FileContext {
	return NewFileContext(c.Root, c.Logger)
}

// NewFileContext creates a file context rooted at root.
func NewFileContext(root string, logger *slog.Logger) *FileContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileContext{root: root, limits: DefaultFileLimits(), logger: logger}
}

// WithLimits sets custom limits.
func (b *FileContext) WithLimits(limits FileLimits) *FileContext {
	b.limits = limits
	return b
}

// AddClaims adds the files named by task claims. A claim ending in "/"
// adds the files below that directory. Claims that do not exist yet are
// skipped: the task is about to create them.
func (b *FileContext) AddClaims(claims []string) {
	for _, claim := range claims {
		full := filepath.Join(b.root, filepath.FromSlash(claim))
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			b.addFile(claim, full)
			continue
		}
		var paths []string
		_ = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && p != full {
					return filepath.SkipDir
				}
				return nil
			}
			paths = append(paths, p)
			return nil
		})
		sort.Strings(paths)
		for _, p := range paths {
			rel, err := filepath.Rel(b.root, p)
			if err != nil {
				continue
			}
			b.addFile(filepath.ToSlash(rel), p)
		}
	}
}

func (b *FileContext) addFile(rel, full string) {
	for _, f := range b.files {
		if f.path == rel {
			return
		}
	}
	content, err := os.ReadFile(full)
	if err != nil {
		b.logger.Debug("skipping unreadable file", "path", rel, "error", err)
		return
	}
	b.files = append(b.files, contextFile{path: rel, content: content, binary: isBinary(content)})
}

// AddContent adds pre-loaded content under a virtual path.
func (b *FileContext) AddContent(path string, content []byte) {
	b.files = append(b.files, contextFile{path: path, content: content, binary: isBinary(content)})
}

// Build renders the files in <file path="..."> blocks.
func (b *FileContext) Build() (string, error) {
	if len(b.files) > b.limits.MaxFileCount {
		return "", fmt.Errorf("%w: %d files > max %d", ErrContextTooLarge, len(b.files), b.limits.MaxFileCount)
	}

	var buf bytes.Buffer
	var totalSize int64
	for _, f := range b.files {
		content := f.content

		if f.binary {
			fmt.Fprintf(&buf, "<file path=%q>\n", f.path)
			fmt.Fprintf(&buf, "[Binary file: %d bytes, type: %s]\n", len(content), detectMimeType(content))
			buf.WriteString("</file>\n\n")
			continue
		}

		if int64(len(content)) > b.limits.MaxFileSize {
			content = append(content[:b.limits.MaxFileSize:b.limits.MaxFileSize], []byte("\n\n[... truncated ...]")...)
		}

		totalSize += int64(len(content))
		if totalSize > b.limits.MaxTotalSize {
			return "", fmt.Errorf("%w: total size %d > max %d", ErrContextTooLarge, totalSize, b.limits.MaxTotalSize)
		}

		fmt.Fprintf(&buf, "<file path=%q>\n", f.path)
		buf.Write(content)
		if !bytes.HasSuffix(content, []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.WriteString("</file>\n\n")
	}
	return buf.String(), nil
}

// FileCount returns the number of files added.
func (b *FileContext) FileCount() int {
	return len(b.files)
}

// isBinary detects binary content by looking for null bytes.
func isBinary(data []byte) bool {
	sample := data
	if len(sample) > 8192 {
		sample = sample[:8192]
	}
	return bytes.Contains(sample, []byte{0})
}

func detectMimeType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}

	switch {
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte("PK")):
		return "application/zip"
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case bytes.HasPrefix(data, []byte{0x7F, 'E', 'L', 'F'}):
		return "application/x-elf"
	default:
		return "application/octet-stream"
	}
}
