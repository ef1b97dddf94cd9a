package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/tobsdb/samplestore/internal/auth"
)

var ErrUserNotFound = errors.New("user not found")

func (e *Engine) CreateUser(name, password string, role auth.UserRole) (*auth.User, error) {
	if name == "" {
		return nil, errors.New("user name cannot be empty")
	}
	user, err := auth.NewUser(name, password, role)
	if err != nil {
		return nil, err
	}

	e.Locker.Lock()
	defer e.Locker.Unlock()
	for _, u := range e.Users {
		if u.Name == name {
			return nil, fmt.Errorf("user %s already exists", name)
		}
	}
	e.Users.Set(user.Id, user)
	e.last_change = time.Now()
	return user, nil
}

func (e *Engine) DeleteUser(name string) error {
	e.Locker.Lock()
	defer e.Locker.Unlock()
	for id, u := range e.Users {
		if u.Name == name {
			e.Users.Delete(id)
			e.last_change = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUserNotFound, name)
}
