package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_IssueReturnsDistinctV4Tokens(t *testing.T) {
	svc := New(48 * time.Hour)

	a, err := svc.Issue(context.Background())
	require.NoError(t, err)
	b, err := svc.Issue(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, a.Token, b.Token)
	assert.Equal(t, uuid.Version(4), a.Token.Version())
	assert.Equal(t, 48*time.Hour, a.ExpiresIn)
	assert.Equal(t, 48*time.Hour, svc.TTL())
}
