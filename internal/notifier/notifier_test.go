package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/fund"
	"DCAKeeper/internal/model"
)

func newTestNotifier(url string) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "", nil)
	n.baseURL = url
	n.delay = time.Millisecond
	return n
}

func TestNotify_PostsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestNotifier(srv.URL).Notify(context.Background(), "hello"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestNotify_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "flood", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).Notify(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Equal(t, int32(3), calls.Load())
}

func TestStartPolling_AnswersOwnChatOnly(t *testing.T) {
	var (
		mu      sync.Mutex
		replies []string
		served  atomic.Bool
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if served.Swap(true) {
				w.Write([]byte(`{"ok":true,"result":[]}`))
				return
			}
			w.Write([]byte(`{"ok":true,"result":[
				{"update_id":1,"message":{"text":"/status","chat":{"id":7}}},
				{"update_id":2,"message":{"text":"/status","chat":{"id":42}}}]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			replies = append(replies, body["text"])
			mu.Unlock()
			cancel()
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	done := make(chan struct{})
	go func() {
		newTestNotifier(srv.URL).StartPolling(ctx, func(_ context.Context, cmd string) string {
			return "reply to " + cmd
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"reply to /status"}, replies)
}

func TestFormatters(t *testing.T) {
	report := model.UpkeepReport{
		RunID:       "run-1",
		Mode:        model.ModeSwap,
		PerformedAt: time.Unix(1_700_000_000, 0),
		Recipient:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		AmountIn:    uint256.NewInt(1000),
		Swap:        &model.SwapResult{AmountOut: uint256.NewInt(1994), Fee: uint256.NewInt(6)},
	}
	msg := FormatUpkeep(report)
	assert.Contains(t, msg, "run-1")
	assert.Contains(t, msg, "Amount out: 1994 (fee 6)")

	report.PayoutErr = xerrors.New(xerrors.CodeTransferFailed, "<rpc> down")
	kept := FormatUpkeep(report)
	assert.Contains(t, kept, "output kept in custody")
	assert.Contains(t, kept, "&lt;rpc&gt;")
	assert.NotContains(t, kept, "Recipient:")

	failure := FormatFailure(xerrors.Wrap(xerrors.CodeTransferFailed, errors.New("<rpc> down"), "payout"))
	assert.Contains(t, failure, "TRANSFER_FAILED")
	assert.Contains(t, failure, "&lt;rpc&gt;")
	assert.Contains(t, failure, "try again")

	status := FormatStatus(fund.Status{Mode: model.ModeWithdraw, IntervalSeconds: 10, TotalFunds: "5", Users: 2, State: "idle"})
	assert.Contains(t, status, "Interval: 10s")
	assert.Contains(t, status, "Custody: 5 (2 users)")
	assert.NotContains(t, status, "Next due")
}
