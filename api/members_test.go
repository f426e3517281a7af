package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/workhours/overtime/overtime"
)

type mockMembershipStore struct{ mock.Mock }

func (m *mockMembershipStore) GetMembership(ctx context.Context, uid, org string) (*overtime.Membership, error) {
	args := m.Called(ctx, uid, org)
	membership, _ := args.Get(0).(*overtime.Membership)
	return membership, args.Error(1)
}

func TestMembershipCache_HitsSkipTheStore(t *testing.T) {
	store := &mockMembershipStore{}
	store.On("GetMembership", mock.Anything, "alice", "acme").
		Return(&overtime.Membership{UID: "alice", OrganizationKey: "acme", Role: overtime.RoleAdmin}, nil).Once()
	cache := NewMembershipCache(store, 16, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m, err := cache.GetMembership(ctx, "alice", "acme")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.True(t, m.IsAdmin())
	}
	store.AssertExpectations(t)
}

func TestMembershipCache_MissesAreNotCached(t *testing.T) {
	store := &mockMembershipStore{}
	store.On("GetMembership", mock.Anything, "bob", "acme").Return(nil, nil).Twice()
	cache := NewMembershipCache(store, 16, time.Minute)

	for i := 0; i < 2; i++ {
		m, err := cache.GetMembership(context.Background(), "bob", "acme")
		require.NoError(t, err)
		assert.Nil(t, m)
	}
	store.AssertExpectations(t)
}

func TestMembershipCache_Evict(t *testing.T) {
	// GIVEN: Cached memberships of alice in two organizations and of
	//        alice_x, whose key shares alice's prefix
	// WHEN: alice is evicted
	// THEN: Only alice's entries reload
	store := &mockMembershipStore{}
	for _, k := range []struct{ uid, org string }{{"alice", "acme"}, {"alice", "globex"}, {"alice_x", "acme"}} {
		store.On("GetMembership", mock.Anything, k.uid, k.org).
			Return(&overtime.Membership{UID: k.uid, OrganizationKey: k.org, Role: overtime.RoleUser}, nil)
	}
	cache := NewMembershipCache(store, 16, time.Minute)
	ctx := context.Background()
	load := func(uid, org string) {
		_, err := cache.GetMembership(ctx, uid, org)
		require.NoError(t, err)
	}

	load("alice", "acme")
	load("alice", "globex")
	load("alice_x", "acme")

	cache.EvictUser("alice")
	load("alice", "acme")
	load("alice", "globex")
	load("alice_x", "acme")

	store.AssertNumberOfCalls(t, "GetMembership", 5)

	cache.Evict("alice_x", "acme")
	load("alice_x", "acme")
	store.AssertNumberOfCalls(t, "GetMembership", 6)

	cache.Purge()
	load("alice", "acme")
	store.AssertNumberOfCalls(t, "GetMembership", 7)
}
