package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUser_FullName(t *testing.T) {
	require.Equal(t, "Ana García", (&User{FirstName: "Ana", LastName: "García"}).FullName())
	require.Equal(t, "Ana", (&User{FirstName: "Ana"}).FullName())
	require.Equal(t, "", (&User{}).FullName())
}

func TestFake_Authenticate(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	f.AddUser(&User{UUID: "u1", Username: "ana", Active: true}, "hunter2!")

	u, err := f.Authenticate(ctx, "ana", "hunter2!")
	require.NoError(t, err)
	require.Equal(t, "u1", u.UUID)

	_, err = f.Authenticate(ctx, "ana", "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.Authenticate(ctx, "nadie", "hunter2!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestFake_InactiveUserCannotAuthenticate(t *testing.T) {
	f := NewFake()
	f.AddUser(&User{UUID: "u1", Username: "baja", Active: false}, "hunter2!")

	_, err := f.Authenticate(context.Background(), "baja", "hunter2!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.GetByUUID(context.Background(), "u1")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUser_HasUsablePassword(t *testing.T) {
	// cuentas provisionadas externamente pueden venir sin hash
	f := NewFake()
	f.AddUser(&User{UUID: "u1", Username: "externa", Active: true}, "")

	require.False(t, f.Users["externa"].HasUsablePassword())
	_, err := f.Authenticate(context.Background(), "externa", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
