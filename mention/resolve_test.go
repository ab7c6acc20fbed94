package mention

import (
	"testing"

	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/persistence"
	"github.com/roomcast-chat/roomcast/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	byUsername map[string]*types.User
	byEmail    map[string]*types.User
	lookups    int
}

func (d *fakeDirectory) UserById(string) (*types.User, error) {
	return nil, persistence.ErrNotFound
}

func (d *fakeDirectory) UserByUsername(username string) (*types.User, error) {
	d.lookups++
	if u, ok := d.byUsername[username]; ok {
		return u, nil
	}
	return nil, persistence.ErrNotFound
}

func (d *fakeDirectory) UserByEmail(email string) (*types.User, error) {
	d.lookups++
	if u, ok := d.byEmail[email]; ok {
		return u, nil
	}
	return nil, persistence.ErrNotFound
}

func TestResolveByUsername(t *testing.T) {
	bob := &types.User{Id: "u-1", Username: "bob", Email: "bob@example.com"}
	dir := &fakeDirectory{byUsername: map[string]*types.User{"bob": bob}}
	r, err := NewResolver(dir, FieldUsername, config.MentionConfig{Pattern: "username", CacheSize: 16})
	require.NoError(t, err)

	assert.Equal(t, bob, r.Resolve("bob"))
	assert.Nil(t, r.Resolve("nobody"))
}

func TestResolveByEmail(t *testing.T) {
	bob := &types.User{Id: "u-1", Username: "bob", Email: "bob@example.com"}
	dir := &fakeDirectory{byEmail: map[string]*types.User{"bob@example.com": bob}}
	r, err := NewResolver(dir, FieldEmail, config.MentionConfig{Pattern: "email", CacheSize: 16})
	require.NoError(t, err)

	assert.Equal(t, bob, r.Resolve("bob@example.com"))
	assert.Nil(t, r.Resolve("bob"))
}

func TestResolveCachesHits(t *testing.T) {
	bob := &types.User{Id: "u-1", Username: "bob"}
	dir := &fakeDirectory{byUsername: map[string]*types.User{"bob": bob}}
	r, err := NewResolver(dir, FieldUsername, config.MentionConfig{Pattern: "username", CacheSize: 16})
	require.NoError(t, err)

	r.Resolve("bob")
	r.Resolve("bob")
	r.Resolve("bob")
	assert.Equal(t, 1, dir.lookups)
}
