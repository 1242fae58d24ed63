package firewall

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/eleven-am/fwmatch/internal/domain"
	"github.com/eleven-am/fwmatch/internal/source"
)

func testLogger(buf *bytes.Buffer) *log.Logger {
	logger := log.New(buf)
	logger.SetLevel(log.DebugLevel)
	return logger
}

func TestFirewall_RejectsBeforeFirstReload(t *testing.T) {
	fw := New(source.Static(referenceRules))

	ok, err := fw.AcceptPacket("inbound", "tcp", 80, "192.168.1.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected rejection before the first reload")
	}
	if fw.Store().Len() != 0 {
		t.Errorf("expected empty store, got %d rules", fw.Store().Len())
	}
}

func TestFirewall_Reload(t *testing.T) {
	var buf bytes.Buffer
	fw := New(source.Static(referenceRules), WithMode(domain.ModeLinear), WithLogger(testLogger(&buf)))

	if err := fw.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	ok, err := fw.AcceptPacket("inbound", "tcp", 80, "192.168.1.2")
	if err != nil || !ok {
		t.Errorf("AcceptPacket = %v, %v; want true, nil", ok, err)
	}
	if fw.Store().Mode() != domain.ModeLinear {
		t.Errorf("expected linear store, got %s", fw.Store().Mode())
	}
	if !strings.Contains(buf.String(), "Rules loaded") {
		t.Errorf("expected load to be logged, got %q", buf.String())
	}
}

func TestFirewall_ReloadSwapsStore(t *testing.T) {
	var current atomic.Value
	current.Store(referenceRules[:1])
	load := func(ctx context.Context) ([]domain.RuleRecord, error) {
		return current.Load().([]domain.RuleRecord), nil
	}
	fw := New(load, WithLogger(testLogger(&bytes.Buffer{})))

	if err := fw.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	before := fw.Store()

	current.Store([]domain.RuleRecord{
		{Direction: "inbound", Protocol: "tcp", PortRange: "8080", IPRange: "10.1.1.1"},
	})
	if err := fw.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if fw.Store() == before {
		t.Fatal("expected a new store after reload")
	}
	if ok, _ := fw.AcceptPacket("inbound", "tcp", 80, "192.168.1.2"); ok {
		t.Error("old rule still accepted after reload")
	}
	if ok, _ := fw.AcceptPacket("inbound", "tcp", 8080, "10.1.1.1"); !ok {
		t.Error("new rule not accepted after reload")
	}
	if ok, _ := before.AcceptPacket("inbound", "tcp", 80, "192.168.1.2"); !ok {
		t.Error("previously published store was mutated")
	}
}

func TestFirewall_FailedReloadKeepsStore(t *testing.T) {
	tests := []struct {
		name string
		load Loader
	}{
		{
			name: "loader error",
			load: func(ctx context.Context) ([]domain.RuleRecord, error) {
				return nil, errors.New("source unavailable")
			},
		},
		{
			name: "malformed rule",
			load: source.Static([]domain.RuleRecord{
				{Direction: "inbound", Protocol: "tcp", PortRange: "80", IPRange: "not-an-ip"},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			load := func(ctx context.Context) ([]domain.RuleRecord, error) {
				calls++
				if calls == 1 {
					return referenceRules, nil
				}
				return tt.load(ctx)
			}
			fw := New(load, WithLogger(testLogger(&bytes.Buffer{})))
			if err := fw.Reload(context.Background()); err != nil {
				t.Fatalf("first Reload: %v", err)
			}
			good := fw.Store()

			if err := fw.Reload(context.Background()); err == nil {
				t.Fatal("expected second reload to fail")
			}
			if fw.Store() != good {
				t.Error("store replaced by a failed reload")
			}
		})
	}
}

func TestFirewall_ReloadMalformedIsTyped(t *testing.T) {
	fw := New(source.Static([]domain.RuleRecord{
		{Direction: "inbound", Protocol: "tcp", PortRange: "80", IPRange: "10.0.0.1-10.0.0.0", Source: "x:1"},
	}), WithLogger(testLogger(&bytes.Buffer{})))

	err := fw.Reload(context.Background())
	var malformed *domain.MalformedRuleError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedRuleError through the wrap, got %v", err)
	}
}

func TestFirewall_ConcurrentReloadsShareOneLoad(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) ([]domain.RuleRecord, error) {
		calls.Add(1)
		<-release
		return referenceRules, nil
	}
	fw := New(load, WithLogger(testLogger(&bytes.Buffer{})))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fw.Reload(context.Background()); err != nil {
				t.Errorf("Reload: %v", err)
			}
		}()
	}

	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n < 1 || n > 8 {
		t.Fatalf("unexpected load count %d", n)
	}
	if n := calls.Load(); n != 1 {
		t.Logf("%d loads ran; late callers started a second flight", n)
	}
	if fw.Store().Len() != len(referenceRules) {
		t.Errorf("expected %d rules, got %d", len(referenceRules), fw.Store().Len())
	}
}

func TestFirewall_CancelledCallerDoesNotFailSharedReload(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) ([]domain.RuleRecord, error) {
		calls.Add(1)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return referenceRules, nil
	}
	fw := New(load, WithLogger(testLogger(&bytes.Buffer{})))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		first <- fw.Reload(firstCtx)
	}()
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	second := make(chan error, 1)
	go func() {
		second <- fw.Reload(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected the cancelled caller to get context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting for the shared reload")
	}

	close(release)
	if err := <-second; err != nil {
		t.Fatalf("expected the live caller to succeed, got %v", err)
	}
	if fw.Store().Len() != len(referenceRules) {
		t.Errorf("expected %d rules, got %d", len(referenceRules), fw.Store().Len())
	}
}

func TestFirewall_QueriesDuringReload(t *testing.T) {
	gen := source.NewGenerator(9)
	fw := New(gen.Loader(500), WithLogger(testLogger(&bytes.Buffer{})))
	if err := fw.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	packets := gen.Packets(1000)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; ctx.Err() == nil; j++ {
				p := packets[j%len(packets)]
				if _, err := fw.AcceptPacket(p.Direction, p.Protocol, p.Port, p.IP); err != nil {
					t.Errorf("AcceptPacket: %v", err)
					return
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		if err := fw.Reload(context.Background()); err != nil {
			t.Fatalf("Reload: %v", err)
		}
	}
	cancel()
	wg.Wait()
}

func TestFirewall_Run(t *testing.T) {
	var calls atomic.Int32
	load := func(ctx context.Context) ([]domain.RuleRecord, error) {
		if calls.Add(1) == 2 {
			return nil, errors.New("transient")
		}
		return referenceRules, nil
	}
	var buf bytes.Buffer
	fw := New(load, WithLogger(testLogger(&buf)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fw.Run(ctx, 5*time.Millisecond)
	}()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 reloads, got %d", calls.Load())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ok, _ := fw.AcceptPacket("inbound", "tcp", 80, "192.168.1.2"); !ok {
		t.Error("expected rules to be loaded after Run")
	}
}

func TestFirewall_RunOnce(t *testing.T) {
	fw := New(source.Static(referenceRules), WithLogger(testLogger(&bytes.Buffer{})))

	if err := fw.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fw.Store().Len() != len(referenceRules) {
		t.Errorf("expected %d rules, got %d", len(referenceRules), fw.Store().Len())
	}
}
