package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pwd-registry/support-desk/internal/domain"
	"github.com/pwd-registry/support-desk/internal/repository"
	"github.com/pwd-registry/support-desk/internal/repository/memory"
)

func TestLookupFallsThroughWhenRedisIsDown(t *testing.T) {
	store := memory.NewStore()
	store.SeedPWDMember(domain.PWDMember{ID: "member-alice", AccountID: "acct-alice", PWDNumber: "PWD-0001"})

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	repo := NewPWDMemberRepository(store.PWDMembers(), client, time.Minute, zap.New(core))

	member, err := repo.GetByAccountID(context.Background(), "acct-alice")
	require.NoError(t, err)
	assert.Equal(t, "member-alice", member.ID)
	assert.Equal(t, 1, logs.FilterMessage("member cache read failed").Len())

	_, err = repo.GetByAccountID(context.Background(), "acct-nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
