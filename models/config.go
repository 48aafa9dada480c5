package models

import (
	"io"
	"os"
)

type Config struct {
	Verbose bool

	// Output receives diagnostics and verbose mapping dumps. Defaults to
	// stderr; the loaded program's own output is never redirected.
	Output io.Writer
}

func (c *Config) Init() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	return c
}
