package platform

import (
	"github.com/maheshrc27/crosspost/internal/platform/kind"
)

// The taxonomy lives in the kind leaf package so internal/httpclient can use
// it too; these aliases keep platform.Error and friends as the names the rest
// of the code reads.

type ErrorKind = kind.ErrorKind

type Error = kind.Error

const (
	KindAuthentication   = kind.Authentication
	KindRateLimit        = kind.RateLimit
	KindTransientNetwork = kind.TransientNetwork
	KindPermanentAPI     = kind.PermanentAPI
	KindMediaPreparation = kind.MediaPreparation
)

func NewError(k ErrorKind, p Platform, message string) *Error {
	return kind.New(k, p, message)
}

// KindOf extracts the taxonomy kind from err, or KindPermanentAPI when err is
// not a platform error.
func KindOf(err error) ErrorKind {
	return kind.Of(err)
}

// IsAuthentication reports whether err is a credential failure.
func IsAuthentication(err error) bool {
	return kind.IsAuthentication(err)
}
