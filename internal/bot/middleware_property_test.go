// Package bot provides middleware for the Telegram bot.
// Property-based tests for middleware functions.
package bot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"panel-wallet/internal/config"
)

// fakeContext implements the parts of tele.Context the middleware touches.
// Any other method panics through the nil embedded interface.
type fakeContext struct {
	tele.Context
	sender    *tele.User
	callback  *tele.Callback
	replies   []string
	responded bool
}

func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Chat() *tele.Chat { return nil }
func (f *fakeContext) Text() string { return "/approve 1 100" }
func (f *fakeContext) Callback() *tele.Callback { return f.callback }
func (f *fakeContext) Respond(...*tele.CallbackResponse) error {
	f.responded = true
	return nil
}

func (f *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	f.replies = append(f.replies, what.(string))
	return nil
}

// TestAdminMiddlewareProperty tests that the wrapped handler runs if and only
// if the sender is a configured admin.
func TestAdminMiddlewareProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := rapid.SliceOfN(rapid.Int64Range(1, 1000000000), 1, 10).Draw(t, "adminIDs")
		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}

		var userID int64
		if rapid.Bool().Draw(t, "pickAdmin") {
			userID = rapid.SampledFrom(adminIDs).Draw(t, "adminID")
		} else {
			userID = rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		}

		expected := false
		for _, id := range adminIDs {
			if id == userID {
				expected = true
				break
			}
		}

		called := false
		h := AdminMiddleware(cfg)(func(tele.Context) error {
			called = true
			return nil
		})
		c := &fakeContext{sender: &tele.User{ID: userID}}
		if err := h(c); err != nil {
			t.Fatalf("middleware returned error: %v", err)
		}

		if called != expected {
			t.Fatalf("userID=%d adminIDs=%v: handler called=%v, want %v", userID, adminIDs, called, expected)
		}
		if !expected && len(c.replies) != 1 {
			t.Fatalf("non-admin got %d replies, want 1", len(c.replies))
		}
	})
}

func TestAdminMiddleware_CallbackAndMissingSender(t *testing.T) {
	cfg := &config.Config{Admin: config.AdminConfig{IDs: []int64{1}}}
	called := false
	h := AdminMiddleware(cfg)(func(tele.Context) error {
		called = true
		return nil
	})

	c := &fakeContext{sender: &tele.User{ID: 2}, callback: &tele.Callback{Data: "\frcpt_ok|1|100"}}
	assert.NoError(t, h(c))
	assert.False(t, called)
	assert.True(t, c.responded)
	assert.Empty(t, c.replies)

	assert.NoError(t, h(&fakeContext{}))
	assert.False(t, called)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware()(func(tele.Context) error {
		panic("boom")
	})
	c := &fakeContext{sender: &tele.User{ID: 1}}

	assert.NoError(t, h(c))
	assert.Len(t, c.replies, 1)

	failing := RecoveryMiddleware()(func(tele.Context) error {
		return errors.New("plain error")
	})
	assert.EqualError(t, failing(c), "plain error")
}

func TestLoggingMiddlewarePassesThrough(t *testing.T) {
	called := false
	h := LoggingMiddleware()(func(tele.Context) error {
		called = true
		return nil
	})
	assert.NoError(t, h(&fakeContext{sender: &tele.User{ID: 1, Username: "rev"}}))
	assert.True(t, called)
}
