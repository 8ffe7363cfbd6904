package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-affiliate-bot/internal/markup"
	"telegram-affiliate-bot/internal/model"
)

type sentMessage struct {
	chatID   int64
	text     string
	keyboard [][]markup.Button
}

type editedMessage struct {
	chatID    int64
	messageID int
	text      string
	keyboard  [][]markup.Button
}

// fakeMessenger records outbound traffic instead of hitting the platform.
type fakeMessenger struct {
	sent   []sentMessage
	edited []editedMessage
	nextID int
}

func (m *fakeMessenger) SendText(_ context.Context, _ *model.Tenant, chatID int64, text string, keyboard [][]markup.Button) (int, error) {
	m.sent = append(m.sent, sentMessage{chatID, text, keyboard})
	m.nextID++
	return m.nextID, nil
}

func (m *fakeMessenger) SendMedia(_ context.Context, _ *model.Tenant, chatID int64, _, _, caption string, keyboard [][]markup.Button) (int, error) {
	m.sent = append(m.sent, sentMessage{chatID, caption, keyboard})
	m.nextID++
	return m.nextID, nil
}

func (m *fakeMessenger) EditText(_ context.Context, _ *model.Tenant, chatID int64, messageID int, text string, keyboard [][]markup.Button) error {
	m.edited = append(m.edited, editedMessage{chatID, messageID, text, keyboard})
	return nil
}

func newTestLedger(m *fakeMessenger) *LedgerService {
	return NewLedgerService(nil, nil, m,
		decimal.RequireFromString("0.30"),
		decimal.RequireFromString("30.00"),
		time.UTC)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain integer", "50 Maybank 0", "50", false},
		{"decimal", "Withdraw 123.45 please", "123.45", false},
		{"first number wins", "50.00 to account 1234567890", "50", false},
		{"no number", "send me money", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoAmount)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", got, tt.want)
		})
	}
}

func TestCreditAmountTenantOverride(t *testing.T) {
	s := newTestLedger(&fakeMessenger{})

	tenant := &model.Tenant{}
	assert.Equal(t, "0.30", s.CreditAmount(tenant).StringFixed(2), "default applies")

	amt := decimal.RequireFromString("1.50")
	tenant.AffiliateAmount = &amt
	assert.Equal(t, "1.50", s.CreditAmount(tenant).StringFixed(2))

	zero := decimal.Zero
	tenant.AffiliateAmount = &zero
	assert.Equal(t, "0.30", s.CreditAmount(tenant).StringFixed(2), "non-positive override ignored")
}

func TestMinWithdrawTenantOverride(t *testing.T) {
	s := newTestLedger(&fakeMessenger{})

	tenant := &model.Tenant{}
	assert.Equal(t, "30.00", s.MinWithdraw(tenant).StringFixed(2))

	amt := decimal.RequireFromString("50")
	tenant.MinWithdraw = &amt
	assert.Equal(t, "50.00", s.MinWithdraw(tenant).StringFixed(2))
}

func TestRenderWithdrawalTemplate(t *testing.T) {
	out := renderWithdrawalTemplate(
		"Paid {amount}, before {balance_before}, now {balance_after}",
		decimal.RequireFromString("100"),
		decimal.RequireFromString("100"),
		decimal.Zero,
	)
	assert.Equal(t, "Paid RM100.00, before RM100.00, now RM0.00", out)
}

func TestAnnotateOperatorMessageStampsOnce(t *testing.T) {
	m := &fakeMessenger{}
	s := newTestLedger(m)
	tenant := &model.Tenant{}
	op := Operator{UserID: 99, FirstName: "Op", Username: "operator"}

	opMsg := &OperatorMessage{ChatID: 5, MessageID: 77, CurrentText: "WITHDRAWAL REQUEST"}
	s.annotateOperatorMessage(context.Background(), tenant, opMsg, op, "✅ <b>APPROVED</b>")

	require.Len(t, m.edited, 1)
	assert.Contains(t, m.edited[0].text, "<b>APPROVED</b>")
	assert.Contains(t, m.edited[0].text, "@operator")
	assert.NotNil(t, m.edited[0].keyboard)
	assert.Empty(t, m.edited[0].keyboard, "buttons are stripped")

	// An already-stamped card keeps its original stamp but still loses the
	// buttons on a repeat tap.
	stamped := &OperatorMessage{ChatID: 5, MessageID: 77, CurrentText: m.edited[0].text}
	s.annotateOperatorMessage(context.Background(), tenant, stamped, op, "❌ <b>REJECTED</b>")

	require.Len(t, m.edited, 2)
	assert.NotContains(t, m.edited[1].text, "REJECTED")
}

func TestAnnotateOperatorMessageNoTarget(t *testing.T) {
	m := &fakeMessenger{}
	s := newTestLedger(m)

	s.annotateOperatorMessage(context.Background(), &model.Tenant{}, nil, Operator{}, "✅ <b>APPROVED</b>")
	assert.Empty(t, m.edited)
}
