package rewind

const (
	metricTicksRecorded       = "rewind_ticks_recorded_total"
	metricCommits             = "rewind_commits_total"
	metricPreviews            = "rewind_previews_total"
	metricAutoRewinds         = "rewind_auto_rewinds_total"
	metricEntitiesRemoved     = "rewind_entities_removed_total"
	metricEntitiesResurrected = "rewind_entities_resurrected_total"
	metricLedgerEvictions     = "rewind_ledger_evictions_total"
	metricTrackedObjects      = "rewind_tracked_objects"
	metricAvailableMillis     = "rewind_available_ms"
)

func (e *Engine) addMetric(key string, delta uint64) {
	if e.metrics == nil || delta == 0 {
		return
	}
	e.metrics.Add(key, delta)
}

func (e *Engine) storeGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.Store(metricTrackedObjects, uint64(e.registry.Len()))
	e.metrics.Store(metricAvailableMillis, uint64(e.AvailableRewindTime().Milliseconds()))
}
