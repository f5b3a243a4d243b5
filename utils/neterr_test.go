package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransientError(t *testing.T) {
	assert.True(t, IsTransientError(errors.New("421 4.7.0 try again later")))
	assert.True(t, IsTransientError(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransientError(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransientError(errors.New("452 too many recipients")))

	assert.False(t, IsTransientError(nil))
	assert.False(t, IsTransientError(errors.New("550 no such user")))
}

func TestIsPermanentError(t *testing.T) {
	assert.True(t, IsPermanentError(errors.New("535 5.7.8 authentication failed")))
	assert.True(t, IsPermanentError(errors.New("lookup smtp.example.com: no such host")))
	assert.True(t, IsPermanentError(errors.New("x509: certificate signed by unknown authority")))

	assert.False(t, IsPermanentError(nil))
	assert.False(t, IsPermanentError(errors.New("421 service not available")))
}
