//go:build integration

package cache_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/pwd-registry/support-desk/internal/domain"
	"github.com/pwd-registry/support-desk/internal/repository"
	"github.com/pwd-registry/support-desk/internal/repository/cache"
	"github.com/pwd-registry/support-desk/internal/repository/memory"
)

type countingMembers struct {
	repository.PWDMemberRepository
	calls atomic.Int32
}

func (c *countingMembers) GetByAccountID(ctx context.Context, accountID string) (*domain.PWDMember, error) {
	c.calls.Add(1)
	return c.PWDMemberRepository.GetByAccountID(ctx, accountID)
}

type MemberCacheSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	client    *redis.Client
}

func TestMemberCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(MemberCacheSuite))
}

func (s *MemberCacheSuite) SetupSuite() {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	uri, err := container.ConnectionString(ctx)
	s.Require().NoError(err)
	opts, err := redis.ParseURL(uri)
	s.Require().NoError(err)
	s.client = redis.NewClient(opts)
	s.Require().NoError(s.client.Ping(ctx).Err())
}

func (s *MemberCacheSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *MemberCacheSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(context.Background()).Err())
}

func (s *MemberCacheSuite) TestSecondLookupIsServedFromRedis() {
	ctx := context.Background()
	store := memory.NewStore()
	store.SeedPWDMember(domain.PWDMember{ID: "member-alice", AccountID: "acct-alice", PWDNumber: "PWD-0001", FullName: "Alice Reyes"})
	backing := &countingMembers{PWDMemberRepository: store.PWDMembers()}
	repo := cache.NewPWDMemberRepository(backing, s.client, time.Minute, zap.NewNop())

	first, err := repo.GetByAccountID(ctx, "acct-alice")
	s.Require().NoError(err)
	second, err := repo.GetByAccountID(ctx, "acct-alice")
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal("Alice Reyes", second.FullName)
	s.EqualValues(1, backing.calls.Load())

	ttl, err := s.client.TTL(ctx, "support-desk:pwd-member:account:acct-alice").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *MemberCacheSuite) TestUnknownAccountIsNotCached() {
	ctx := context.Background()
	store := memory.NewStore()
	backing := &countingMembers{PWDMemberRepository: store.PWDMembers()}
	repo := cache.NewPWDMemberRepository(backing, s.client, time.Minute, zap.NewNop())

	_, err := repo.GetByAccountID(ctx, "acct-carol")
	s.ErrorIs(err, repository.ErrNotFound)

	store.SeedPWDMember(domain.PWDMember{ID: "member-carol", AccountID: "acct-carol", PWDNumber: "PWD-0002"})
	member, err := repo.GetByAccountID(ctx, "acct-carol")
	s.Require().NoError(err)
	s.Equal("member-carol", member.ID)
	s.EqualValues(2, backing.calls.Load())
}

func (s *MemberCacheSuite) TestCorruptEntryIsReplaced() {
	ctx := context.Background()
	store := memory.NewStore()
	store.SeedPWDMember(domain.PWDMember{ID: "member-alice", AccountID: "acct-alice", PWDNumber: "PWD-0001"})
	s.Require().NoError(s.client.Set(ctx, "support-desk:pwd-member:account:acct-alice", "{not json", time.Minute).Err())

	repo := cache.NewPWDMemberRepository(store.PWDMembers(), s.client, time.Minute, zap.NewNop())
	member, err := repo.GetByAccountID(ctx, "acct-alice")
	s.Require().NoError(err)
	s.Equal("member-alice", member.ID)

	raw, err := s.client.Get(ctx, "support-desk:pwd-member:account:acct-alice").Result()
	s.Require().NoError(err)
	s.Contains(raw, "member-alice")
}
