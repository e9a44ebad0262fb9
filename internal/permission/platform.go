package permission

import (
	"context"

	"blazealert/internal/storage"
)

// ConsentKey is the record key holding the remembered decision.
const ConsentKey = "blazeAlertPushConsent"

// Platform remembers the user's consent decision the way a browser or OS does.
type Platform struct {
	st storage.Store
}

func NewPlatform(st storage.Store) *Platform {
	return &Platform{st: st}
}

// Decision returns the remembered decision, StateUnknown when none exists.
func (p *Platform) Decision(ctx context.Context) (State, error) {
	if p == nil || p.st == nil {
		return StateUnknown, nil
	}
	rec, ok, err := p.st.Get(ctx, ConsentKey)
	if err != nil || !ok {
		return StateUnknown, err
	}
	return parseState(string(rec.Value)), nil
}

// Remember stores a granted or denied decision.
func (p *Platform) Remember(ctx context.Context, s State) error {
	if p == nil || p.st == nil {
		return nil
	}
	return p.st.Put(ctx, ConsentKey, []byte(s))
}

// Revoke forgets the decision, as if the user reset it in system settings.
func (p *Platform) Revoke(ctx context.Context) error {
	if p == nil || p.st == nil {
		return nil
	}
	return p.st.Delete(ctx, ConsentKey)
}
