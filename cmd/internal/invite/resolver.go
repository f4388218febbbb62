package invite

import (
	"context"
	"encoding/json"
	"fmt"

	"securechat/cmd/internal/kv"
)

// StoreResolver finds codes in the persisted channel state.
type StoreResolver struct {
	Store kv.Store
}

// Resolve returns the newest record of channelID carrying code.
func (r StoreResolver) Resolve(ctx context.Context, channelID, code string) (Record, error) {
	if r.Store == nil {
		return Record{}, ErrInvalidInput
	}
	raw, err := r.Store.Get(ctx, ChannelKey(channelID))
	if err != nil {
		if kv.IsNotFound(err) {
			return Record{}, noLongerValid(ErrNotFound)
		}
		return Record{}, fmt.Errorf("%w: resolve: %v", ErrStorage, err)
	}
	var st channelState
	if err := json.Unmarshal(raw, &st); err != nil {
		return Record{}, noLongerValid(ErrNotFound)
	}
	i := st.findCode(code)
	if i < 0 {
		return Record{}, noLongerValid(ErrNotFound)
	}
	return st.Pending[i], nil
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, channelID, code string) (Record, error)

func (f ResolverFunc) Resolve(ctx context.Context, channelID, code string) (Record, error) {
	return f(ctx, channelID, code)
}
