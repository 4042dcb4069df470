package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "WalletFleet/internal/errors"
	"WalletFleet/pkg/logger"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDeliversToEveryChannel(t *testing.T) {
	first := &recordingNotifier{channel: ChannelLog}
	second := &recordingNotifier{channel: ChannelWebhook, err: errors.New("down")}
	dispatcher := NewFanout(first, nil, second)

	err := dispatcher.Notify(context.Background(), Event{JobID: "job-1"})
	if err == nil || !strings.Contains(err.Error(), "channel webhook") {
		t.Fatalf("期望 webhook 渠道错误, 实际 %v", err)
	}
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("事件未广播到全部渠道: %d/%d", len(first.events), len(second.events))
	}
	channels := dispatcher.Channels()
	if len(channels) != 2 || channels[0] != ChannelLog || channels[1] != ChannelWebhook {
		t.Fatalf("渠道列表不正确: %v", channels)
	}

	var nilDispatcher *FanoutDispatcher
	if err := nilDispatcher.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil dispatcher 应忽略事件: %v", err)
	}
}

func TestWebhookNotifierPostsEvent(t *testing.T) {
	received := make(chan Event, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		var event Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- event
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := &WebhookNotifier{URL: server.URL, Client: server.Client()}
	event := Event{
		Code:       "SUBMISSION_FAILED",
		Severity:   xerrors.SeverityWarning,
		JobID:      "job-2",
		Kind:       "sweep",
		Failed:     3,
		OccurredAt: time.Unix(1700000000, 0).UTC(),
	}
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("发送告警失败: %v", err)
	}
	got := <-received
	if got.JobID != "job-2" || got.Kind != "sweep" || got.Failed != 3 {
		t.Fatalf("告警内容不正确: %+v", got)
	}
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := &WebhookNotifier{URL: server.URL}
	if err := notifier.Notify(context.Background(), Event{JobID: "job-3"}); err == nil {
		t.Fatalf("期望非 2xx 响应返回错误")
	}

	var unconfigured *WebhookNotifier
	if err := unconfigured.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("未配置的 webhook 应跳过: %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	notifier := &LogNotifier{Logger: logger.Discard()}
	if err := notifier.Notify(context.Background(), Event{JobID: "job-4", Metadata: map[string]string{"stage": "terminal"}}); err != nil {
		t.Fatalf("日志告警失败: %v", err)
	}
}
