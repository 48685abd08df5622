package filter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/maxvaer/w3ccheck/internal/crawl"
)

func page(status int, body string) *crawl.Result {
	return &crawl.Result{
		URL:      "http://site.test/",
		Response: &crawl.Response{StatusCode: status, Body: []byte(body)},
	}
}

func TestDuplicateFilter_Name(t *testing.T) {
	f := NewDuplicateFilter(2)
	if f.Name() != "duplicate" {
		t.Errorf("Name() = %q, want %q", f.Name(), "duplicate")
	}
}

func TestDuplicateFilter_AllowsUpToThreshold(t *testing.T) {
	f := NewDuplicateFilter(3)

	for i := 1; i <= 3; i++ {
		if f.ShouldFilter(page(200, "same layout")) {
			t.Errorf("call %d: should NOT filter (threshold 3)", i)
		}
	}

	if !f.ShouldFilter(page(200, "same layout")) {
		t.Error("call 4: should filter (exceeds threshold 3)")
	}
}

func TestDuplicateFilter_ZeroThresholdMeansOnce(t *testing.T) {
	f := NewDuplicateFilter(0)
	if f.ShouldFilter(page(200, "x")) {
		t.Error("first copy should pass")
	}
	if !f.ShouldFilter(page(200, "x")) {
		t.Error("second copy should be filtered")
	}
}

func TestDuplicateFilter_DifferentStatusCodesAreSeparate(t *testing.T) {
	f := NewDuplicateFilter(1)

	if f.ShouldFilter(page(200, "same body")) {
		t.Error("first 200 should pass")
	}
	if f.ShouldFilter(page(404, "same body")) {
		t.Error("first 404 should pass")
	}
	if !f.ShouldFilter(page(200, "same body")) {
		t.Error("second 200 should be filtered")
	}
}

func TestDuplicateFilter_DifferentBodiesAreSeparate(t *testing.T) {
	f := NewDuplicateFilter(1)

	if f.ShouldFilter(page(200, "page A")) {
		t.Error("first body A should pass")
	}
	if f.ShouldFilter(page(200, "page B")) {
		t.Error("first body B should pass")
	}
	if !f.ShouldFilter(page(200, "page A")) {
		t.Error("second body A should be filtered")
	}
}

func TestDuplicateFilter_IgnoresEmptyAndFailedPages(t *testing.T) {
	f := NewDuplicateFilter(1)
	for i := 0; i < 3; i++ {
		if f.ShouldFilter(page(200, "")) {
			t.Error("empty bodies must never be filtered")
		}
		if f.ShouldFilter(&crawl.Result{URL: "http://site.test/", Error: fmt.Errorf("refused")}) {
			t.Error("failed fetches must never be filtered")
		}
	}
}

func TestDuplicateFilter_Concurrent(t *testing.T) {
	f := NewDuplicateFilter(1)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		passed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !f.ShouldFilter(page(200, "shared")) {
				mu.Lock()
				passed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if passed != 1 {
		t.Errorf("expected exactly 1 copy to pass, got %d", passed)
	}
}
