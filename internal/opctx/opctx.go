// Package opctx mints a short-lived operation id for one statement that
// cmd/bptidx runs and attaches it to the log lines logged through it, the
// way a server tags an inbound request for later correlation.
package opctx

import (
	"log"
	"os"

	"github.com/google/uuid"
)

// Op carries one operation id and a *log.Logger that prefixes every line
// with it.
type Op struct {
	ID     string
	Logger *log.Logger
}

// New mints a fresh operation id and a logger writing to os.Stderr
// prefixed with it.
func New() *Op {
	id := uuid.NewString()
	logger := log.New(os.Stderr, "["+id[:8]+"] ", log.LstdFlags)
	return &Op{ID: id, Logger: logger}
}
