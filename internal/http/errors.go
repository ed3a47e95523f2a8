package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Category classifies a transport failure.
type Category string

const (
	// CategoryTimeout covers client, dial and context deadlines.
	CategoryTimeout Category = "timeout"
	// CategoryConnectionRefused means the target actively refused the connection.
	CategoryConnectionRefused Category = "connection_refused"
	// CategoryTLS covers handshake and certificate verification failures.
	CategoryTLS Category = "tls"
	// CategoryOther is everything else, including body read failures and
	// errors raised by scenario code.
	CategoryOther Category = "other"
)

// Categories lists every category in reporting order.
var Categories = []Category{CategoryTimeout, CategoryConnectionRefused, CategoryTLS, CategoryOther}

// Error is a categorized transport error returned by Client.Send.
type Error struct {
	Category Category
	Method   string
	URL      string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.URL, e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error is a timeout, so *Error satisfies the
// same check as net.Error.
func (e *Error) Timeout() bool {
	return e.Category == CategoryTimeout
}

// CategoryOf returns the category of err. Errors that are not *Error are
// classified on the fly. A nil error has no category.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return httpErr.Category
	}
	return Classify(err)
}

// Classify maps a raw error from net/http into a Category.
func Classify(err error) Category {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return CategoryConnectionRefused
	}

	if isTLSError(err) {
		return CategoryTLS
	}

	return CategoryOther
}

func isTLSError(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		alertErr     tls.AlertError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidCert  x509.CertificateInvalidError
		systemRoots  x509.SystemRootsError
		insecureAlgo x509.InsecureAlgorithmError
	)

	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &systemRoots) ||
		errors.As(err, &insecureAlgo)
}
