package mention

import (
	"errors"

	lru "github.com/hashicorp/golang-lru"
	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/directory"
	"github.com/roomcast-chat/roomcast/globals"
	"github.com/roomcast-chat/roomcast/persistence"
	"github.com/roomcast-chat/roomcast/types"
)

// Resolver looks up mention candidates in the directory. Resolved identities
// are cached; user records are immutable from the core's point of view, so
// the cache never needs invalidation.
type Resolver struct {
	dir   directory.Directory
	field Field
	cache *lru.Cache
}

func NewResolver(dir directory.Directory, field Field, cfg config.MentionConfig) (*Resolver, error) {
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{dir: dir, field: field, cache: cache}, nil
}

// Resolve returns the user a candidate token refers to, or nil if the token
// does not match any directory entry. Non-matches are not errors.
func (r *Resolver) Resolve(token string) *types.User {
	if cached, ok := r.cache.Get(token); ok {
		return cached.(*types.User)
	}
	var user *types.User
	var err error
	switch r.field {
	case FieldUsername:
		user, err = r.dir.UserByUsername(token)
	case FieldEmail:
		user, err = r.dir.UserByEmail(token)
	}
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			globals.AppLogger.Error("directory lookup failed", "token", token, "error", err)
		}
		return nil
	}
	r.cache.Add(token, user)
	return user
}
