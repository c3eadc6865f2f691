package singleinstance

// This file defines the API for single-instance ownership and delegation of
// boundary operations to the resident process.

import (
	"context"
)

// Operations carried over the resident channel.
const (
	OpStartCapture  = "start-capture"
	OpStopCapture   = "stop-capture"
	OpCaptureSingle = "capture-single"
	OpCleanup       = "cleanup"
	OpSendText      = "send-text"
	OpStatus        = "status"
)

// Server owns the TCP endpoint and answers delegated requests.
type Server interface {
	// Start binds the first port of the configured range and begins accepting clients.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
type Conn interface {
	// Request returns the parsed client request.
	Request() Request
	// Respond writes v as a single JSON line.
	Respond(v any) error
	// RespondError sends {"success":false,"error":msg}.
	RespondError(msg string) error
	// Close closes the underlying connection.
	Close() error
}

// Request is one line sent by a client.
type Request struct {
	Op  string `json:"op"`
	Arg string `json:"arg,omitempty"`
}

// Client delegates requests to a resident server.
type Client interface {
	// Call scans the port range, sends req to the first resident that answers
	// PING and decodes its reply into out. With no resident it returns
	// delegated=false, err=nil.
	Call(ctx context.Context, req Request, out any) (delegated bool, err error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTCPServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return &tcpClient{} }
