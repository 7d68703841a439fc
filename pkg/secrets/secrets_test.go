package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	dErrors "regdesk/pkg/domain-errors"
)

type SecretsSuite struct {
	suite.Suite
	hasher *BcryptHasher
}

func TestSecretsSuite(t *testing.T) {
	suite.Run(t, new(SecretsSuite))
}

func (s *SecretsSuite) SetupTest() {
	s.hasher = NewBcryptHasher(bcrypt.MinCost)
}

func (s *SecretsSuite) TestHashAndVerify() {
	s.Run("hash verifies against the original password", func() {
		hash, err := s.hasher.Hash("password1")
		s.Require().NoError(err)
		s.NotEqual("password1", hash)

		ok, err := s.hasher.Verify(hash, "password1")
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("wrong password does not verify", func() {
		hash, err := s.hasher.Hash("password1")
		s.Require().NoError(err)

		ok, err := s.hasher.Verify(hash, "password2")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("empty password is rejected", func() {
		_, err := s.hasher.Hash("")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("password over bcrypt limit is rejected", func() {
		_, err := s.hasher.Hash(strings.Repeat("p", 80))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("out of range cost falls back to default", func() {
		s.Equal(bcrypt.DefaultCost, NewBcryptHasher(99).Cost)
	})
}

func (s *SecretsSuite) TestKeyGenerator() {
	a, err := KeyGenerator{}.Generate()
	s.Require().NoError(err)
	b, err := KeyGenerator{}.Generate()
	s.Require().NoError(err)

	s.Len(a, 43)
	s.NotEqual(a, b)
}
