package chain

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrNotFound 交易或回执不存在
var ErrNotFound = errors.New("not found on ledger")

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

// Transient 标记为可重试错误
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient, reason: "explicit_transient"}
}

// Terminal 标记为不可重试错误
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTerminal, reason: "explicit_terminal"}
}

// Classify 区分链调用的临时错误与永久错误，未知错误按临时错误处理
func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: marked.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTransient, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{Class: ClassTransient, Reason: "net_timeout"}
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 429 || httpErr.StatusCode >= 500 {
			return Decision{Class: ClassTransient, Reason: "http_status"}
		}
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, terminalMessageTokens) {
		return Decision{Class: ClassTerminal, Reason: "message_terminal"}
	}
	if containsAny(lower, transientMessageTokens) {
		return Decision{Class: ClassTransient, Reason: "message_transient"}
	}

	return Decision{Class: ClassTransient, Reason: "unknown_transient_default"}
}

// IsAlreadyKnown 交易已在节点交易池中
func IsAlreadyKnown(err error) bool {
	return err != nil && containsAny(strings.ToLower(err.Error()), []string{"already known", "known transaction"})
}

// IsNonceTooLow nonce 已被使用
func IsNonceTooLow(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"too many requests",
	"rate limit",
	"http status 429",
	"http status 502",
	"http status 503",
	"http status 504",
	"replacement transaction underpriced",
	"transaction underpriced",
	"txpool is full",
}

var terminalMessageTokens = []string{
	"insufficient funds",
	"nonce too low",
	"nonce too high",
	"intrinsic gas too low",
	"gas limit reached",
	"exceeds block gas limit",
	"invalid sender",
	"invalid transaction",
	"execution reverted",
	"tx fee exceeds",
	"oversized data",
	"invalid argument",
	"invalid params",
}
