package chain

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC server error range reserved for implementation defined errors,
// which nodes use for overload and temporary unavailability.
const (
	rpcServerErrorMin = -32099
	rpcServerErrorMax = -32000
)

var transientMessages = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"broken pipe",
	"too many requests",
	"rate limit",
	"503 service unavailable",
	"502 bad gateway",
	"504 gateway timeout",
	"header not found",
	txIndexingMessage,
}

// txIndexingMessage is what geth answers transaction lookups with while its
// transaction index is still being built.
const txIndexingMessage = "transaction indexing is in progress"

func isIndexing(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), txIndexingMessage)
}

// classify wraps err into a TransientError when it looks like a network
// problem rather than a rejection by the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return &TransientError{Op: op, Err: err}
	}
	return err
}

func isTransient(err error) bool {
	if IsTransient(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()
		// -32000 is also used by geth for "nonce too low" and friends
		if code == rpcServerErrorMax {
			return containsAny(strings.ToLower(err.Error()), transientMessages)
		}
		return code >= rpcServerErrorMin && code < rpcServerErrorMax
	}

	return containsAny(strings.ToLower(err.Error()), transientMessages)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
