package shared

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestWarningCollectorConcurrentAdds(t *testing.T) {
	wc := NewWarningCollector(true)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			wc.AddNotFoundWarning(ProviderLastFM, id, "x")
		}(int64(i))
	}
	wg.Wait()

	if got := wc.GetWarningCount(); got != 20 {
		t.Fatalf("expected 20 warnings, got %d", got)
	}
}

func TestWarningCollectorDisabled(t *testing.T) {
	wc := NewWarningCollector(false)
	wc.AddConflictWarning(ProviderSpotify, 1, "rec")
	if wc.HasWarnings() {
		t.Error("disabled collector should not record warnings")
	}
}

func TestWarningCollectorSummaryGroupsContexts(t *testing.T) {
	InitializeColors(true)
	wc := NewWarningCollector(true)
	wc.AddConflictWarning(ProviderSpotify, 7, "rec-1")
	wc.AddConflictWarning(ProviderSpotify, 7, "rec-1")
	wc.AddProviderFailureWarning(ProviderLastFM, 9, "HTTP 503")

	var buf bytes.Buffer
	wc.PrintSummary(&buf)
	out := buf.String()

	if !strings.Contains(out, "(×2)") {
		t.Errorf("expected grouped conflict count, got:\n%s", out)
	}
	if !strings.Contains(out, "HTTP 503") {
		t.Errorf("expected failure details, got:\n%s", out)
	}
}
