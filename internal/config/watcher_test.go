package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeTestConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	writeTestConfig(t, path, content)
	return path
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	path := newTestFile(t, "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 1)
	watcher := NewConfigWatcher(
		path,
		loadTestConfig,
		newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond),
	)

	watcher.OnReload(func(cfg testConfig) {
		received <- cfg
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	// Wait for watcher to initialize
	time.Sleep(100 * time.Millisecond)

	writeTestConfig(t, path, "name = \"updated\"\nvalue = 42\n")

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated, value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_ReplaceOnSave(t *testing.T) {
	path := newTestFile(t, "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 1)
	watcher := NewConfigWatcher(
		path,
		loadTestConfig,
		newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond),
	)

	watcher.OnReload(func(cfg testConfig) {
		received <- cfg
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	time.Sleep(100 * time.Millisecond)

	// Simulate an editor saving by write-temp-then-rename
	tmpPath := path + ".tmp"
	writeTestConfig(t, tmpPath, "name = \"replaced\"\nvalue = 7\n")
	if err := os.Rename(tmpPath, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Name != "replaced" || cfg.Value != 7 {
			t.Errorf("got %+v, want name=replaced, value=7", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestConfigWatcher_FreshConfig(t *testing.T) {
	path := newTestFile(t, "value = 1\n")

	var loadCount atomic.Int32
	loader := func(path string) (testConfig, error) {
		loadCount.Add(1)
		return loadTestConfig(path)
	}

	received := make(chan testConfig, 10)
	watcher := NewConfigWatcher(
		path,
		loader,
		newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond),
	)

	watcher.OnReload(func(cfg testConfig) {
		received <- cfg
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	time.Sleep(100 * time.Millisecond)

	writeTestConfig(t, path, "value = 10\n")
	<-received

	time.Sleep(100 * time.Millisecond)
	writeTestConfig(t, path, "value = 20\n")
	cfg := <-received

	if cfg.Value != 20 {
		t.Errorf("expected value=20, got %d", cfg.Value)
	}

	if got := loadCount.Load(); got < 2 {
		t.Errorf("expected at least 2 loads, got %d", got)
	}
}

func TestConfigWatcher_MultipleHandlers(t *testing.T) {
	path := newTestFile(t, "name = \"test\"\nvalue = 1\n")

	var count atomic.Int32
	var configs []testConfig
	var mu sync.Mutex

	watcher := NewConfigWatcher(
		path,
		loadTestConfig,
		newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond),
	)

	for range 3 {
		watcher.OnReload(func(cfg testConfig) {
			count.Add(1)
			mu.Lock()
			configs = append(configs, cfg)
			mu.Unlock()
		})
	}

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	writeTestConfig(t, path, "name = \"new\"\nvalue = 2\n")

	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 3 {
		t.Errorf("expected 3 handlers called, got %d", got)
	}

	// All handlers must see the same snapshot
	mu.Lock()
	defer mu.Unlock()
	for i, cfg := range configs {
		if cfg.Name != "new" || cfg.Value != 2 {
			t.Errorf("handler %d got wrong config: %+v", i, cfg)
		}
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := newTestFile(t, "value = 1\n")

	var count1, count2 atomic.Int32
	var lastValue1, lastValue2 atomic.Int32
	watcher := NewConfigWatcher(
		path,
		loadTestConfig,
		newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond),
	)

	watcher.OnReload(func(cfg testConfig) {
		lastValue1.Store(int32(cfg.Value))
		count1.Add(1)
	})
	unsub2 := watcher.OnReload(func(cfg testConfig) {
		lastValue2.Store(int32(cfg.Value))
		count2.Add(1)
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	// First change - both handlers called
	time.Sleep(100 * time.Millisecond)
	writeTestConfig(t, path, "value = 10\n")
	time.Sleep(200 * time.Millisecond)

	unsub2()

	// Second change - only first handler called
	writeTestConfig(t, path, "value = 20\n")
	time.Sleep(200 * time.Millisecond)

	if got := count1.Load(); got != 2 {
		t.Errorf("handler1: expected 2 calls, got %d", got)
	}
	if got := count2.Load(); got != 1 {
		t.Errorf("handler2: expected 1 call, got %d", got)
	}
	if got := lastValue1.Load(); got != 20 {
		t.Errorf("handler1: expected last value 20, got %d", got)
	}
	if got := lastValue2.Load(); got != 10 {
		t.Errorf("handler2: expected last value 10, got %d", got)
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	path := newTestFile(t, "name = \"valid\"\nvalue = 1\n")

	errorReceived := make(chan error, 1)
	configReceived := make(chan testConfig, 1)

	watcher := NewConfigWatcher(
		path,
		loadTestConfig,
		newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond),
		WithErrorHandler[testConfig](func(err error) {
			errorReceived <- err
		}),
	)

	watcher.OnReload(func(cfg testConfig) {
		configReceived <- cfg
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	writeTestConfig(t, path, "invalid toml [[[")

	select {
	case <-errorReceived:
		// Expected
	case <-configReceived:
		t.Fatal("config handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := newTestFile(t, "value = 0\n")

	var count atomic.Int32
	var lastValue atomic.Int32

	watcher := NewConfigWatcher(
		path,
		loadTestConfig,
		newTestLogger(),
		WithDebounce[testConfig](200*time.Millisecond),
	)

	watcher.OnReload(func(cfg testConfig) {
		count.Add(1)
		lastValue.Store(int32(cfg.Value))
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	// Rapid changes within debounce window
	time.Sleep(100 * time.Millisecond)
	for i := 1; i <= 5; i++ {
		writeTestConfig(t, path, fmt.Sprintf("value = %d\n", i))
		time.Sleep(50 * time.Millisecond)
	}

	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced call, got %d", got)
	}
	if got := lastValue.Load(); got != 5 {
		t.Errorf("expected final value 5, got %d", got)
	}
}

func TestConfigWatcher_ThreadSafety(t *testing.T) {
	path := newTestFile(t, "name = \"test\"\n")

	watcher := NewConfigWatcher(
		path,
		loadTestConfig,
		newTestLogger(),
		WithDebounce[testConfig](10*time.Millisecond),
	)

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}
	defer func() {
		if stopErr := watcher.Stop(); stopErr != nil {
			t.Errorf("watcher.Stop failed: %v", stopErr)
		}
	}()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := watcher.OnReload(func(_ testConfig) {})
			time.Sleep(time.Millisecond)
			unsub()
		}()
	}

	// Trigger changes while handlers are being added and removed
	for i := range 10 {
		writeTestConfig(t, path, fmt.Sprintf("value = %d\n", i))
		time.Sleep(20 * time.Millisecond)
	}

	wg.Wait()
}

func TestConfigWatcher_Stop(t *testing.T) {
	path := newTestFile(t, "value = 1\n")

	var count atomic.Int32
	watcher := NewConfigWatcher(
		path,
		loadTestConfig,
		newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond),
	)

	watcher.OnReload(func(_ testConfig) {
		count.Add(1)
	})

	if startErr := watcher.Start(); startErr != nil {
		t.Fatal(startErr)
	}

	time.Sleep(100 * time.Millisecond)

	if stopErr := watcher.Stop(); stopErr != nil {
		t.Fatal(stopErr)
	}

	// Changes after stop should not trigger handler
	writeTestConfig(t, path, "value = 99\n")
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 calls after stop, got %d", got)
	}
}
