package decrypt

import (
	"github.com/sirupsen/logrus"

	"github.com/kenneth/swift-decryption-gateway/internal/crypto"
)

// DecryptHeader decrypts a single header value with the given key.
//
// When required is true a failure is fatal for the response and surfaces as
// ErrHeaderDecryption. When required is false a failure means "value absent":
// the empty string is returned with no error and the caller omits the header.
func DecryptHeader(logger *logrus.Logger, name, value string, key []byte, required bool) (string, error) {
	plaintext, err := crypto.DecryptValue(key, value)
	if err == nil {
		return plaintext, nil
	}

	if required {
		logger.WithError(err).WithField("header", name).Error("Failed to decrypt required header")
		return "", ErrHeaderDecryption
	}
	logger.WithError(err).WithField("header", name).Debug("Unable to decrypt optional header")
	return "", nil
}
