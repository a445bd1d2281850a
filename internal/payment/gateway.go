// Package payment talks to the hosted checkout of the payment provider.
// The provider only sees a session reference and an amount; it reports the
// outcome asynchronously through a signed callback.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/lithammer/shortuuid/v3"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

var ErrNoCheckoutURL = errors.New("payment: checkout url not configured")

// HostedCheckout builds redirect URLs to the provider's hosted payment
// page.  The query string is signed with the callback secret so the
// provider can reject tampered amounts.
type HostedCheckout struct {
	base   *url.URL
	secret string
	newRef func() string
}

// NewHostedCheckout parses checkoutURL once.
func NewHostedCheckout(checkoutURL, secret string) (*HostedCheckout, error) {
	if checkoutURL == "" {
		return nil, ErrNoCheckoutURL
	}
	u, err := url.Parse(checkoutURL)
	if err != nil {
		return nil, fmt.Errorf("payment: parse checkout url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("payment: checkout url %q must be absolute", checkoutURL)
	}
	return &HostedCheckout{base: u, secret: secret, newRef: shortuuid.New}, nil
}

func (g *HostedCheckout) CreateSession(ctx context.Context, b model.Booking) (model.PaymentSession, error) {
	if err := ctx.Err(); err != nil {
		return model.PaymentSession{}, err
	}
	if b.AmountCents < 0 {
		return model.PaymentSession{}, fmt.Errorf("payment: negative amount for booking %s", b.ID)
	}
	ref := g.newRef()
	q := g.base.Query()
	q.Set("session", ref)
	q.Set("booking", b.ID)
	q.Set("amount", strconv.FormatInt(b.AmountCents, 10))
	q.Set("sig", hexMAC(g.secret, []byte(ref+"|"+b.ID+"|"+strconv.FormatInt(b.AmountCents, 10))))

	u := *g.base
	u.RawQuery = q.Encode()
	return model.PaymentSession{Ref: ref, RedirectURL: u.String()}, nil
}
