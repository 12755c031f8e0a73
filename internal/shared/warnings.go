package shared

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// WarningType represents different types of warnings
type WarningType int

const (
	ProviderNotFoundWarning WarningType = iota
	ProviderFailureWarning
	ConnectionConflictWarning
	MissingMetadataWarning
	FingerprintWarning
	ImportSkippedWarning
)

// Warning represents a single warning with context
type Warning struct {
	Type    WarningType
	Message string
	Context string // entity / provider context
	Details string // additional details like error message
}

// WarningCollector collects non-fatal problems during a batch run. Safe for
// concurrent use.
type WarningCollector struct {
	mu       sync.Mutex
	warnings []Warning
	enabled  bool
}

// NewWarningCollector creates a new warning collector
func NewWarningCollector(enabled bool) *WarningCollector {
	return &WarningCollector{
		warnings: make([]Warning, 0),
		enabled:  enabled,
	}
}

// AddWarning adds a warning to the collector
func (wc *WarningCollector) AddWarning(warningType WarningType, context, message, details string) {
	if wc == nil || !wc.enabled {
		return
	}
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.warnings = append(wc.warnings, Warning{
		Type:    warningType,
		Message: message,
		Context: context,
		Details: details,
	})
}

// AddNotFoundWarning records that a provider had no match for an entity.
func (wc *WarningCollector) AddNotFoundWarning(provider string, entityID int64, name string) {
	context := fmt.Sprintf("%s: #%d %s", provider, entityID, name)
	wc.AddWarning(ProviderNotFoundWarning, context, "No provider match", "")
}

// AddProviderFailureWarning records a provider call that failed after retries.
func (wc *WarningCollector) AddProviderFailureWarning(provider string, entityID int64, details string) {
	context := fmt.Sprintf("%s: #%d", provider, entityID)
	wc.AddWarning(ProviderFailureWarning, context, "Provider call failed", details)
}

// AddConflictWarning records a record that could not be connected without reassignment.
func (wc *WarningCollector) AddConflictWarning(provider string, entityID int64, recordID string) {
	context := fmt.Sprintf("%s: #%d ↔ %s", provider, entityID, recordID)
	wc.AddWarning(ConnectionConflictWarning, context, "Record already connected elsewhere", "")
}

// AddMissingMetadataWarning records an entity that lacks metadata a provider needs.
func (wc *WarningCollector) AddMissingMetadataWarning(provider string, entityID int64, details string) {
	context := fmt.Sprintf("%s: #%d", provider, entityID)
	wc.AddWarning(MissingMetadataWarning, context, "Missing local metadata", details)
}

// AddFingerprintWarning records a file that could not be fingerprinted.
func (wc *WarningCollector) AddFingerprintWarning(path, details string) {
	wc.AddWarning(FingerprintWarning, path, "Fingerprinting failed", details)
}

// AddImportSkippedWarning records a library item skipped during import.
func (wc *WarningCollector) AddImportSkippedWarning(item, details string) {
	wc.AddWarning(ImportSkippedWarning, item, "Import skipped", details)
}

// HasWarnings returns true if there are any warnings
func (wc *WarningCollector) HasWarnings() bool {
	return wc.GetWarningCount() > 0
}

// GetWarningCount returns the total number of warnings
func (wc *WarningCollector) GetWarningCount() int {
	if wc == nil {
		return 0
	}
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return len(wc.warnings)
}

// GetWarningsByType returns warnings grouped by type
func (wc *WarningCollector) GetWarningsByType() map[WarningType][]Warning {
	grouped := make(map[WarningType][]Warning)
	if wc == nil {
		return grouped
	}
	wc.mu.Lock()
	defer wc.mu.Unlock()
	for _, warning := range wc.warnings {
		grouped[warning.Type] = append(grouped[warning.Type], warning)
	}
	return grouped
}

// PrintSummary writes a formatted summary of all warnings to w
func (wc *WarningCollector) PrintSummary(w io.Writer) {
	if !wc.HasWarnings() {
		return
	}

	ColorWarning.Fprintf(w, "\n⚠️  Warning Summary (%d warnings):\n", wc.GetWarningCount())
	ColorWarning.Fprintln(w, strings.Repeat("─", 50))

	grouped := wc.GetWarningsByType()

	var types []WarningType
	for warningType := range grouped {
		types = append(types, warningType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, warningType := range types {
		printWarningTypeSection(w, warningType, grouped[warningType])
	}
}

func printWarningTypeSection(w io.Writer, warningType WarningType, warnings []Warning) {
	if len(warnings) == 0 {
		return
	}
	ColorWarning.Fprintf(w, "\n%s (%d):\n", warningTypeTitle(warningType), len(warnings))

	// Group similar warnings to avoid repetition
	contextCounts := make(map[string]int)
	details := make(map[string]string)
	for _, warning := range warnings {
		contextCounts[warning.Context]++
		if warning.Details != "" {
			details[warning.Context] = warning.Details
		}
	}

	var contexts []string
	for context := range contextCounts {
		contexts = append(contexts, context)
	}
	sort.Strings(contexts)

	for _, context := range contexts {
		line := context
		if count := contextCounts[context]; count > 1 {
			line = fmt.Sprintf("%s (×%d)", context, count)
		}
		if d := details[context]; d != "" {
			line = fmt.Sprintf("%s: %s", line, TruncateString(d, 120))
		}
		ColorWarning.Fprintf(w, "  • %s\n", line)
	}
}

func warningTypeTitle(warningType WarningType) string {
	switch warningType {
	case ProviderNotFoundWarning:
		return "No Provider Match"
	case ProviderFailureWarning:
		return "Provider Failures"
	case ConnectionConflictWarning:
		return "Connection Conflicts (use `reconnect` to reassign)"
	case MissingMetadataWarning:
		return "Missing Local Metadata"
	case FingerprintWarning:
		return "Fingerprinting Failures"
	case ImportSkippedWarning:
		return "Skipped During Import"
	default:
		return "Other Warnings"
	}
}
