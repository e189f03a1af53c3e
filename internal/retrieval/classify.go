package retrieval

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/seenimoa/nportp/internal/infra"
)

// ErrorKind labels why a fetch attempt failed.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection"
	KindTLS        ErrorKind = "tls"
	KindEOF        ErrorKind = "eof"
	KindHTTPStatus ErrorKind = "http_status"
	KindRequest    ErrorKind = "request"
	KindCanceled   ErrorKind = "canceled"
)

// Classify reports the kind of err and whether it is worth retrying.
func Classify(err error) (ErrorKind, bool) {
	if err == nil {
		return KindNone, false
	}

	var statusErr *infra.HTTPStatusError
	if errors.As(err, &statusErr) {
		return KindHTTPStatus, false
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout, true
	}

	if isTLSError(err) {
		return KindTLS, true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindEOF, true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return KindConnection, true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnection, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection, true
	}

	return KindRequest, false
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return true
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}
	var hostErr x509.HostnameError
	return errors.As(err, &hostErr)
}
