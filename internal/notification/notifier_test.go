package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/suavescribe/internal/providers/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProvider struct {
	messages []email.Message
	err      error
}

func (p *recordingProvider) Send(_ context.Context, msg email.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingProvider) SendTemplate(ctx context.Context, to []string, subject, name string, data any) error {
	body, err := email.Render(name, data)
	if err != nil {
		return err
	}
	return p.Send(ctx, email.Message{To: to, Subject: subject, HTML: body})
}

func TestSendPaymentFailureNotice(t *testing.T) {
	provider := &recordingProvider{}
	n := New(Params{Log: zap.NewNop(), Email: provider})

	retry := time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC)
	err := n.SendPaymentFailureNotice(context.Background(), "acme-coffee.myshopify.com", "ada@example.com", "Ada", retry)
	require.NoError(t, err)

	require.Len(t, provider.messages, 1)
	msg := provider.messages[0]
	assert.Equal(t, []string{"ada@example.com"}, msg.To)
	assert.Contains(t, msg.HTML, "Hi Ada,")
	assert.Contains(t, msg.HTML, "acme-coffee")
	assert.Contains(t, msg.HTML, "June 2, 2024")
}

func TestSendPaymentFailureNoticeRequiresRecipient(t *testing.T) {
	provider := &recordingProvider{}
	n := New(Params{Log: zap.NewNop(), Email: provider})

	err := n.SendPaymentFailureNotice(context.Background(), "acme.myshopify.com", " ", "Ada", time.Now())
	assert.ErrorIs(t, err, ErrMissingRecipient)
	assert.Empty(t, provider.messages)
}

func TestSendPaymentFailureNoticePropagatesProviderError(t *testing.T) {
	provider := &recordingProvider{err: errors.New("smtp down")}
	n := New(Params{Log: zap.NewNop(), Email: provider})

	err := n.SendPaymentFailureNotice(context.Background(), "acme.myshopify.com", "ada@example.com", "", time.Now())
	assert.EqualError(t, err, "smtp down")
}
