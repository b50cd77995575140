package memory

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"quorum/internal/credential"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func (s *StoreSuite) newCredential() *credential.Credential {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	cred, err := credential.NewCredential(id.NewIdentityID(), pub, false, 0, time.Now())
	s.Require().NoError(err)
	return cred
}

func (s *StoreSuite) TestCreateAndGet() {
	cred := s.newCredential()
	s.Require().NoError(s.store.Create(s.ctx, cred))

	got, err := s.store.Get(s.ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal(cred.Fingerprint, got.Fingerprint)
	s.Equal(int64(1), got.Version)
}

func (s *StoreSuite) TestCreateDuplicateFingerprint() {
	cred := s.newCredential()
	s.Require().NoError(s.store.Create(s.ctx, cred))

	dup, err := credential.NewCredential(id.NewIdentityID(), cred.PublicKey, false, 0, time.Now())
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
}

func (s *StoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, id.NewCredentialID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestUpdateVersioning() {
	cred := s.newCredential()
	s.Require().NoError(s.store.Create(s.ctx, cred))

	cred.SignCount = 7
	s.Require().NoError(s.store.Update(s.ctx, cred))
	s.Equal(int64(2), cred.Version)

	// A stale copy must not commit.
	stale := *cred
	stale.Version = 1
	s.ErrorIs(s.store.Update(s.ctx, &stale), sentinel.ErrConflict)

	got, err := s.store.Get(s.ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal(uint32(7), got.SignCount)
}

func (s *StoreSuite) TestGetReturnsCopy() {
	cred := s.newCredential()
	s.Require().NoError(s.store.Create(s.ctx, cred))

	got, err := s.store.Get(s.ctx, cred.ID)
	s.Require().NoError(err)
	got.SignCount = 99

	again, err := s.store.Get(s.ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal(uint32(0), again.SignCount)
}
