package checkout

import (
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/cart"
)

// attempt tracks one checkout through OPEN -> PRICED -> COMMITTED, or ABORTED.
type attempt struct {
	status cart.Status
	log    *zerolog.Logger
}

func newAttempt(log *zerolog.Logger) *attempt {
	return &attempt{status: cart.StatusOpen, log: log}
}

func (a *attempt) advance(next cart.Status) error {
	moved, err := a.status.Transition(next)
	if err != nil {
		return err
	}
	a.log.Debug().Str("from", string(a.status)).Str("to", string(moved)).Msg("checkout attempt")
	a.status = moved
	return nil
}

// abort is best effort; a terminal attempt stays where it is.
func (a *attempt) abort() {
	if a.status.Terminal() {
		return
	}
	_ = a.advance(cart.StatusAborted)
}
