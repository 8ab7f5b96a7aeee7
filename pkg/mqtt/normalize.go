package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// Normalize classifies a back-end outcome into a library-level ReasonCode and
// logs one line with the label, the resolved code and the raw error text.
func Normalize(err error, label string, log LogCallbacks) ReasonCode {
	rc := classify(err)

	raw := "none"
	if err != nil {
		raw = err.Error()
	}

	level := LogDebug
	if rc != ReasonOK {
		level = LogWarning
	}
	if log != nil {
		repr := rc.Repr()
		log.Log(level, fmt.Sprintf("%s: %s (%s), transport error: %s", label, repr.Short, repr.Long, raw))
	}
	return rc
}

func classify(err error) ReasonCode {
	if err == nil {
		return ReasonOK
	}

	var (
		certErr      *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	switch {
	case errors.Is(err, ErrTLS),
		errors.As(err, &certErr),
		errors.As(err, &recordErr),
		errors.As(err, &authorityErr),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr):
		return ReasonTLSError
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrConnectionLost):
		return ReasonNoConnection
	case errors.Is(err, ErrNotAuthorized):
		return ReasonNotAllowed
	default:
		return ReasonGeneralError
	}
}
