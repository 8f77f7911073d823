package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

type recordingDispatcher struct {
	got []Notification
	err error
}

func (r *recordingDispatcher) Dispatch(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMulti_SendsToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingDispatcher{}
	failing := &recordingDispatcher{err: errors.New("down")}

	err := Multi{failing, ok}.Dispatch(context.Background(), ToAccount(KindWalletCredited, 1, "hi", nil))

	assert.Error(t, err)
	assert.Len(t, ok.got, 1)
	assert.Len(t, failing.got, 1)
}

func TestDeliver_SwallowsFailures(t *testing.T) {
	failing := &recordingDispatcher{err: errors.New("down")}
	batch := []Notification{
		ToAccount(KindWalletCredited, 1, "a", nil),
		ToAdmins(KindReceiptDecided, "b", nil),
	}

	Deliver(context.Background(), failing, batch)
	Deliver(context.Background(), nil, batch)

	assert.Len(t, failing.got, 2, "every notification attempted after a failure")
}

type fakeSender struct {
	sent map[string][]string
	err  error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if f.sent == nil {
		f.sent = map[string][]string{}
	}
	f.sent[to.Recipient()] = append(f.sent[to.Recipient()], what.(string))
	return &tele.Message{}, f.err
}

type fakeChats map[int64]*int64

func (f fakeChats) TelegramChatID(_ context.Context, accountID int64) (*int64, error) {
	chat, ok := f[accountID]
	if !ok {
		return nil, errors.New("account not found")
	}
	return chat, nil
}

func TestTelegram_Dispatch(t *testing.T) {
	chat := int64(9001)
	sender := &fakeSender{}
	tg := NewTelegram(sender, fakeChats{1: &chat, 2: nil}, []int64{10, 20})
	ctx := context.Background()

	require.NoError(t, tg.Dispatch(ctx, ToAccount(KindWalletCredited, 1, "credited", nil)))
	require.NoError(t, tg.Dispatch(ctx, ToAccount(KindWalletCredited, 2, "no chat", nil)))
	require.NoError(t, tg.Dispatch(ctx, ToAdmins(KindReceiptSubmitted, "review", nil)))
	assert.Error(t, tg.Dispatch(ctx, ToAccount(KindWalletCredited, 3, "unknown", nil)))

	assert.Equal(t, []string{"credited"}, sender.sent["9001"])
	assert.Equal(t, []string{"review"}, sender.sent["10"])
	assert.Equal(t, []string{"review"}, sender.sent["20"])
	assert.Len(t, sender.sent, 3)
}

func TestTelegram_AdminSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("blocked")}
	tg := NewTelegram(sender, fakeChats{}, []int64{10, 20})

	err := tg.Dispatch(context.Background(), ToAdmins(KindReceiptSubmitted, "review", nil))
	assert.Error(t, err)
	assert.Len(t, sender.sent, 2, "one failing admin does not stop the rest")
}

func TestReviewMarkup(t *testing.T) {
	n := ToAdmins(KindReceiptSubmitted, "review", map[string]any{"receipt_id": int64(5), "amount": int64(50000)})
	markup := ReviewMarkup(n)
	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 1)
	row := markup.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, ActionApprove, row[0].Unique)
	assert.Equal(t, "5|50000", row[0].Data)
	assert.Equal(t, ActionReject, row[1].Unique)
	assert.Equal(t, "5", row[1].Data)

	assert.Nil(t, ReviewMarkup(ToAdmins(KindReceiptDecided, "done", map[string]any{"receipt_id": int64(5)})))
	assert.Nil(t, ReviewMarkup(ToAdmins(KindReceiptSubmitted, "legacy", nil)))
}

func TestKafka_PublishesJSONEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var n Notification
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		if n.Kind != KindCommissionPaid || n.AccountID != 42 {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	k := NewKafka(producer, "wallet-events")
	err := k.Dispatch(context.Background(), ToAccount(KindCommissionPaid, 42, "commission", map[string]any{"amount": 5000}))
	require.NoError(t, err)
	require.NoError(t, k.Close())
}

func TestKafka_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	k := NewKafka(producer, "wallet-events")
	err := k.Dispatch(context.Background(), ToAdmins(KindReceiptSubmitted, "x", nil))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, k.Close())
}
