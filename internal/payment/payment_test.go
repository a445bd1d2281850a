package payment

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

func TestSignVerify(t *testing.T) {
	body := []byte(`{"booking_id":"b1","payment_ref":"p1","status":"success"}`)
	header := Sign("s3cret", body)
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, header)

	assert.True(t, Verify("s3cret", body, header))
	assert.True(t, Verify("s3cret", body, header[len("sha256="):]))
	assert.False(t, Verify("other", body, header))
	assert.False(t, Verify("s3cret", append(body, ' '), header))
	assert.False(t, Verify("s3cret", body, ""))
	assert.False(t, Verify("", body, Sign("", body)))
}

func TestHostedCheckout_CreateSession(t *testing.T) {
	g, err := NewHostedCheckout("https://pay.example.com/checkout?merchant=m1", "s3cret")
	require.NoError(t, err)
	g.newRef = func() string { return "ref123" }

	s, err := g.CreateSession(context.Background(), model.Booking{ID: "b1", AmountCents: 2400})
	require.NoError(t, err)
	assert.Equal(t, "ref123", s.Ref)

	u, err := url.Parse(s.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "pay.example.com", u.Host)
	q := u.Query()
	assert.Equal(t, "m1", q.Get("merchant"))
	assert.Equal(t, "b1", q.Get("booking"))
	assert.Equal(t, "2400", q.Get("amount"))
	assert.Equal(t, hexMAC("s3cret", []byte("ref123|b1|2400")), q.Get("sig"))
}

func TestNewHostedCheckout_Invalid(t *testing.T) {
	_, err := NewHostedCheckout("", "x")
	assert.ErrorIs(t, err, ErrNoCheckoutURL)
	_, err = NewHostedCheckout("/relative", "x")
	assert.Error(t, err)
}
