package slab

import (
	"io"

	"github.com/sirupsen/logrus"
)

// nopLogger is the default logger newConfig installs: a logrus.Logger
// writing to io.Discard, so an Allocator built without WithLogger needs no
// nil check on every trace call. Plays the role of the kernel's early_println! sink, minus
// the semantic dependency — nothing about allocator correctness reads
// these log lines back.
func nopLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
