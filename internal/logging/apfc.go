package logging

import (
	"sync"

	"go.uber.org/zap"
)

// APFC-specific categories, one per component of the Atomic Planning &
// Feedback Core. These slot into the existing category-keyed file logger
// above; each also gets a zap.SugaredLogger for structured console/CLI
// output, matching how cmd/nerd initializes zap for CLI-facing logs while
// the file-based Logger handles on-disk telemetry.
const (
	CategoryBlackboard   Category = "apfc_blackboard"
	CategoryWorkspace    Category = "apfc_workspace"
	CategoryExtractor    Category = "apfc_extractor"
	CategoryAssembler    Category = "apfc_assembler"
	CategoryPlanner      Category = "apfc_planner"
	CategoryWorker       Category = "apfc_worker"
	CategoryConflict     Category = "apfc_conflict"
	CategoryRepair       Category = "apfc_repair"
	CategoryOrchestrator Category = "apfc_orchestrator"
)

var (
	apfcZapMu  sync.RWMutex
	apfcZap    *zap.SugaredLogger
)

// SetAPFCZap installs the zap logger used by APFCLog. Call once during CLI
// bootstrap (see cmd/apfc); defaults to a no-op logger if never called.
func SetAPFCZap(l *zap.Logger) {
	apfcZapMu.Lock()
	defer apfcZapMu.Unlock()
	if l == nil {
		apfcZap = zap.NewNop().Sugar()
		return
	}
	apfcZap = l.Sugar()
}

// APFCLog returns the structured logger for an APFC category, falling back
// to a no-op sugared logger before SetAPFCZap is called.
func APFCLog(category Category) *zap.SugaredLogger {
	apfcZapMu.RLock()
	defer apfcZapMu.RUnlock()
	if apfcZap == nil {
		return zap.NewNop().Sugar()
	}
	return apfcZap.With("component", string(category))
}
