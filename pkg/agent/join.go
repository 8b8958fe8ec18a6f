package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/vctt94/pokerhost/pkg/registry"
)

// ErrUnknownHost is returned when the configured host is not in the registry.
var ErrUnknownHost = errors.New("host is not registered")

// Registry is the part of the subscription ledger an agent uses to join a
// host.
type Registry interface {
	IsHost(ctx context.Context, identity string) (bool, error)
	Subscribe(ctx context.Context, req registry.SubscribeRequest) error
	RequestSubscription(ctx context.Context, req registry.SubscribeRequest) error
}

// CheckHost fails with ErrUnknownHost unless host is registered.
func CheckHost(ctx context.Context, reg Registry, host string) error {
	ok, err := reg.IsHost(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to look up host: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHost, host)
	}
	return nil
}

// JoinHost subscribes req.Subscriber to req.Provider. With pending set, or
// when the host requires approval, a request is recorded instead. It reports
// whether a direct subscription was made.
func JoinHost(ctx context.Context, reg Registry, req registry.SubscribeRequest, pending bool) (bool, error) {
	if err := CheckHost(ctx, reg, req.Provider); err != nil {
		return false, err
	}
	if !pending {
		err := reg.Subscribe(ctx, req)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, registry.ErrRestricted) {
			return false, err
		}
	}
	if err := reg.RequestSubscription(ctx, req); err != nil {
		return false, err
	}
	return false, nil
}
