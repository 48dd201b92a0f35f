package app

import (
	"fmt"
	"time"
)

const (
	gaugeQueueDepth         = "matchmaker_queue_depth"
	gaugeAvailableStreamers = "matchmaker_available_streamers"
	gaugeDemandRatio        = "matchmaker_demand_ratio"
)

// registerGauges exposes the broker's measurement points on the sink. The
// callbacks are polled on scrape, so they read live state.
func (b *Broker) registerGauges() error {
	gauges := []struct {
		name, help string
		collect    func() float64
	}{
		{gaugeQueueDepth, "Number of sessions waiting for a streamer.",
			func() float64 { return float64(b.QueueDepth()) }},
		{gaugeAvailableStreamers, "Streamers currently eligible and unallocated.",
			func() float64 { return float64(b.pool.CountEligible(time.Now())) }},
		{gaugeDemandRatio, "Waiting sessions per ready streamer; waiting+1 when none are ready.",
			b.DemandRatio},
	}
	for _, g := range gauges {
		if err := b.sink.RegisterGauge(g.name, g.help, g.collect); err != nil {
			return fmt.Errorf("register %s: %w", g.name, err)
		}
	}
	return nil
}

// DemandRatio is waiting/ready when any streamer is ready. With zero ready
// streamers it reports waiting+1 if anyone is waiting, else 0, so unserved
// demand is distinguishable from no demand.
func (b *Broker) DemandRatio() float64 {
	waiting := b.QueueDepth()
	ready := b.pool.CountReady(time.Now())
	if ready > 0 {
		return float64(waiting) / float64(ready)
	}
	if waiting > 0 {
		return float64(waiting + 1)
	}
	return 0
}
