package docpipe

import "log/slog"

// Config configures the document pipeline.
type Config struct {
	// MaxFileSize is the maximum file size to process (default: 50 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Plain disables the section classifier: every extracted line becomes a
	// paragraph of a single headingless section.
	Plain bool `json:"plain" yaml:"plain"`

	// Root confines the paths given to the docswap_read tool; they resolve
	// under it (default: the working directory).
	Root string `json:"root" yaml:"root"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 50 * 1024 * 1024
	}
	if c.Root == "" {
		c.Root = "."
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
