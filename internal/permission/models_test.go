package permission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {

	secret := "somesecret"
	audience := "https://chat.example.io"
	now := time.Now().Unix() - 1

	v := Verifier{Audience: audience, Secret: secret}

	bearer, err := Sign(NewToken(audience, "alice", now, now, now+60), secret)
	require.NoError(t, err)

	assert.NoError(t, v.Verify(bearer, "alice"))
	assert.ErrorIs(t, v.Verify(bearer, "bob"), ErrIdentityMismatch)

	// wrong secret
	assert.Error(t, Verifier{Audience: audience, Secret: "other"}.Verify(bearer, "alice"))

	// wrong audience
	assert.ErrorIs(t, Verifier{Audience: "https://elsewhere", Secret: secret}.Verify(bearer, "alice"), ErrWrongAudience)

	// expired
	bearer, err = Sign(NewToken(audience, "alice", now-120, now-120, now-60), secret)
	require.NoError(t, err)
	assert.Error(t, v.Verify(bearer, "alice"))

	// not a token
	assert.Error(t, v.Verify("garbage", "alice"))
}

func TestHasRequiredClaims(t *testing.T) {

	now := time.Now().Unix()

	assert.True(t, HasRequiredClaims(NewToken("a", "alice", now, now, now+1)))
	assert.False(t, HasRequiredClaims(NewToken("a", "", now, now, now+1)))
	assert.False(t, HasRequiredClaims(Token{}))
}
