// Package directory provides read-only identity lookups. User records are
// created and maintained by the account service / admin CLI; the chat core
// only resolves them.
package directory

import (
	"github.com/roomcast-chat/roomcast/persistence"
	"github.com/roomcast-chat/roomcast/types"
)

type Directory interface {
	// UserById resolves a user by their stable id. Returns
	// persistence.ErrNotFound for unknown ids.
	UserById(id string) (*types.User, error)
	UserByUsername(username string) (*types.User, error)
	UserByEmail(email string) (*types.User, error)
}

type persistedDirectory struct {
	p persistence.Persister
}

func NewDirectory(p persistence.Persister) Directory {
	return &persistedDirectory{p: p}
}

func (d *persistedDirectory) UserById(id string) (*types.User, error) {
	user := types.User{Id: id}
	if err := d.p.GetUser(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *persistedDirectory) UserByUsername(username string) (*types.User, error) {
	return d.p.GetUserByUsername(username)
}

func (d *persistedDirectory) UserByEmail(email string) (*types.User, error) {
	return d.p.GetUserByEmail(email)
}
