// Package horosafe provides the filesystem and I/O guards used wherever
// client input reaches the disk: path traversal checks, upload file name
// sanitising, and bounded reads and copies.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrTooLarge is returned when a bounded read or copy exceeds its limit.
var ErrTooLarge = errors.New("horosafe: input exceeds size limit")

// ErrBadFileName is returned when a file name has nothing usable left after
// sanitising.
var ErrBadFileName = errors.New("horosafe: unusable file name")

// SafePath validates that joining base and userInput does not escape base.
// Any ".." element is refused, even one that would clean away; dots inside a
// name such as "report..v2.pdf" are fine. Returns the cleaned path or
// ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	for _, elem := range strings.FieldsFunc(userInput, isSeparator) {
		if elem == ".." {
			return "", ErrPathTraversal
		}
	}
	// Clean both and verify the result stays under base.
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if !strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) &&
		cleaned != filepath.Clean(base) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

func isSeparator(r rune) bool { return r == '/' || r == '\\' }

// SafeFileName reduces a client-supplied file name to its last path element
// and strips control characters. Both / and \ count as separators.
func SafeFileName(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", ErrBadFileName
	}
	if len(name) > 255 {
		return "", fmt.Errorf("%w: longer than 255 bytes", ErrBadFileName)
	}
	return name, nil
}

// LimitedReadAll reads at most maxBytes from r. Returns ErrTooLarge if the
// limit is exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// CopyLimited copies at most maxBytes from src to dst. Returns ErrTooLarge
// if src holds more; dst then holds a truncated prefix.
func CopyLimited(dst io.Writer, src io.Reader, maxBytes int64) (int64, error) {
	n, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	if err != nil {
		return n, err
	}
	if n > maxBytes {
		return n, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return n, nil
}
