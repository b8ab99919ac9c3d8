package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yanizio/openaccount/internal/account"
	"github.com/yanizio/openaccount/internal/config"
	"github.com/yanizio/openaccount/internal/form"
	"github.com/yanizio/openaccount/internal/logger"
	"github.com/yanizio/openaccount/internal/metrics"
	"github.com/yanizio/openaccount/internal/submission"
)

func receipt() submission.Receipt {
	return submission.Receipt{
		Reference:   "3f2b8c1e-6a4d-4f7e-9b1a-2c3d4e5f6a7b",
		SubmittedAt: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		Application: account.Application{
			FullName:       "Ally Perera",
			Email:          "ally@example.com",
			PhoneNumber:    "0771234567",
			DateOfBirth:    time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
			AccountType:    account.Savings,
			InitialDeposit: decimal.RequireFromString("250.5"),
			Currency:       account.LKR,
			StreetAddress:  "12 Galle Road",
			City:           "Colombo",
			ZipCode:        "00300",
			TermsAccepted:  true,
		},
	}
}

// -----------------------------------------------------------------------------
// Log
// -----------------------------------------------------------------------------

func TestLog_NoPersonalData(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logger.WithContext(context.Background(), zap.New(core).Sugar())

	if err := (Log{}).Notify(ctx, receipt()); err != nil {
		t.Fatal(err)
	}

	entries := logs.FilterMessage("account opened").All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["reference"] != receipt().Reference || fields["deposit"] != "250.50" {
		t.Fatalf("fields = %v", fields)
	}
	for _, v := range fields {
		s, _ := v.(string)
		for _, pii := range []string{"Ally", "ally@example.com", "0771234567", "Galle"} {
			if strings.Contains(s, pii) {
				t.Fatalf("personal data %q logged: %v", pii, fields)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Multi
// -----------------------------------------------------------------------------

func TestMulti_RunsAllAndJoins(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	var calls []string
	mk := func(name string, err error) submission.Notifier {
		return submission.NotifierFunc(func(context.Context, submission.Receipt) error {
			calls = append(calls, name)
			return err
		})
	}

	err := Multi{mk("a", errA), mk("ok", nil), mk("b", errB)}.Notify(context.Background(), receipt())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("err = %v", err)
	}
	if strings.Join(calls, ",") != "a,ok,b" {
		t.Fatalf("calls = %v", calls)
	}
	if err := (Multi{mk("ok", nil)}).Notify(context.Background(), receipt()); err != nil {
		t.Fatalf("err = %v", err)
	}
}

// -----------------------------------------------------------------------------
// Kafka
// -----------------------------------------------------------------------------

type fakeWriter struct {
	msgs     []kafka.Message
	err      error
	deadline bool
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestKafka_Publishes(t *testing.T) {
	fw := &fakeWriter{}
	k := newKafka(fw, "account.opened", time.Second)

	if err := k.Notify(context.Background(), receipt()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("msgs = %d", len(fw.msgs))
	}
	msg := fw.msgs[0]
	if string(msg.Key) != receipt().Reference {
		t.Fatalf("key = %q", msg.Key)
	}
	if !fw.deadline {
		t.Fatal("publish ran without a deadline")
	}

	var ev struct {
		Reference   string         `json:"reference"`
		SubmittedAt time.Time      `json:"submittedAt"`
		Application map[string]any `json:"application"`
	}
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("event JSON: %v", err)
	}
	if ev.Reference != receipt().Reference || !ev.SubmittedAt.Equal(receipt().SubmittedAt) {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Application["dateOfBirth"] != "1990-05-17" || ev.Application["accountType"] != "Savings" {
		t.Fatalf("application = %v", ev.Application)
	}

	if err := k.Close(); err != nil || !fw.closed {
		t.Fatal("Close did not reach the writer")
	}
}

func TestKafka_ErrorCounted(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker unreachable")}
	k := newKafka(fw, "account.opened", time.Second)

	before := testutil.ToFloat64(metrics.NotifyErrorsTotal.WithLabelValues("kafka"))
	if err := k.Notify(context.Background(), receipt()); err == nil {
		t.Fatal("expected error")
	}
	if d := testutil.ToFloat64(metrics.NotifyErrorsTotal.WithLabelValues("kafka")) - before; d != 1 {
		t.Fatalf("errors counted = %v", d)
	}
}

func TestNewKafka_Invalid(t *testing.T) {
	if _, err := NewKafka(KafkaOptions{Topic: "t"}); err == nil {
		t.Fatal("no brokers accepted")
	}
	if _, err := NewKafka(KafkaOptions{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatal("no topic accepted")
	}
}

// -----------------------------------------------------------------------------
// FromActions
// -----------------------------------------------------------------------------

func TestFromActions(t *testing.T) {
	nop := zap.NewNop().Sugar()
	withBrokers := config.Kafka{Brokers: []string{"localhost:9092"}, Topic: "account.opened"}

	cases := []struct {
		name    string
		actions []form.ActionDef
		kafka   config.Kafka
		check   func(t *testing.T, n submission.Notifier, closers int)
	}{
		{"empty", nil, config.Kafka{}, func(t *testing.T, n submission.Notifier, closers int) {
			if _, ok := n.(Log); !ok || closers != 0 {
				t.Fatalf("got %T, %d closers", n, closers)
			}
		}},
		{"kafka skipped without brokers", []form.ActionDef{{Type: "kafka"}}, config.Kafka{}, func(t *testing.T, n submission.Notifier, closers int) {
			if _, ok := n.(Log); !ok || closers != 0 {
				t.Fatalf("got %T, %d closers", n, closers)
			}
		}},
		{"unknown skipped", []form.ActionDef{{Type: "fax"}, {Type: "log"}}, config.Kafka{}, func(t *testing.T, n submission.Notifier, closers int) {
			if _, ok := n.(Log); !ok {
				t.Fatalf("got %T", n)
			}
		}},
		{"log and kafka", []form.ActionDef{{Type: "log"}, {Type: "kafka", Params: map[string]any{"topic": "custom.topic"}}}, withBrokers, func(t *testing.T, n submission.Notifier, closers int) {
			m, ok := n.(Multi)
			if !ok || len(m) != 2 || closers != 1 {
				t.Fatalf("got %T (%v), %d closers", n, n, closers)
			}
			if k := m[1].(*Kafka); k.topic != "custom.topic" {
				t.Fatalf("topic = %q", k.topic)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, closers, err := FromActions(tc.actions, Deps{Kafka: tc.kafka, Log: nop})
			if err != nil {
				t.Fatalf("FromActions: %v", err)
			}
			tc.check(t, n, len(closers))
			for _, c := range closers {
				_ = c.Close()
			}
		})
	}
}
