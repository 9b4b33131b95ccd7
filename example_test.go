package authcore_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/store/memstore"
)

// ExampleNew builds an engine on the in-memory store.
func ExampleNew() {
	cfg := authcore.DefaultConfig()
	cfg.Session.Secret = "replace-with-32-random-bytes-...."

	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(memstore.New()).
		WithActivitySink(authcore.NewChannelActivitySink(64)).
		Build()
	if err != nil {
		panic(err)
	}
	defer engine.Close()
}

// ExampleEngine_Login shows how callers branch on the login outcome.
func ExampleEngine_Login() {
	var engine *authcore.Engine
	res, err := engine.Login(context.Background(), authcore.LoginRequest{Email: "alice@example.com", Password: "password"})
	switch {
	case errors.Is(err, authcore.ErrAccountLocked):
		// tell the user to wait
	case err != nil:
		// treat as bad credentials
	case res.TwoFactorRequired:
		// ask for a code and call Login again with TwoFactorCode set
	default:
		_ = res.SessionToken
	}
}

func Example_permissionCheck() {
	id := permission.Identity{UserID: "u1", Role: authcore.RoleUser, Permissions: []string{"reports:read"}}
	fmt.Println(permission.RequirePermission(id, "reports:read").Allowed)
	fmt.Println(permission.RequirePermission(id, "reports:write").Err())
	// Output:
	// true
	// permission denied
}
