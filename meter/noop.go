package meter

import "github.com/ineyio/batchgate"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ batchgate.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAdmit(batchgate.AdmitEvent)   {}
func (m *NoopMeter) OnFlush(batchgate.FlushEvent)   {}
func (m *NoopMeter) OnResult(batchgate.ResultEvent) {}
func (m *NoopMeter) OnQuota(batchgate.QuotaEvent)   {}
func (m *NoopMeter) OnSweep(batchgate.SweepEvent)   {}
