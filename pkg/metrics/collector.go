package metrics

import (
	"time"

	"github.com/cuemby/wsomgr/pkg/types"
)

// Collector periodically snapshots a Plan into the Plan, manager and VM
// gauges declared in metrics.go. The snapshot source is injected so it
// can be backed by a live plan-watch subscription or, in tests, a fixed
// Plan.
type Collector struct {
	snapshot func() (types.Plan, bool)
	stopCh   chan struct{}
}

// NewCollector creates a collector. snapshot should return the most
// recently observed Plan and false if none has been observed yet.
func NewCollector(snapshot func() (types.Plan, bool)) *Collector {
	return &Collector{
		snapshot: snapshot,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	plan, ok := c.snapshot()
	if !ok {
		return
	}

	PlanVersion.Set(float64(plan.Version))

	c.collectVmCounts(plan)
	c.collectManagerMetrics(plan)
}

func (c *Collector) collectVmCounts(plan types.Plan) {
	counts := map[string]int{}
	for _, vm := range plan.Vms {
		switch vm.(type) {
		case types.Worker:
			counts["wrk"]++
		case types.LoadBalancer:
			counts["lb"]++
		}
	}
	for kind, n := range counts {
		VmsTotal.WithLabelValues(kind).Set(float64(n))
	}
}

func (c *Collector) collectManagerMetrics(plan types.Plan) {
	stateCounts := map[string]int{}
	for _, st := range plan.ManagerStates {
		if st.IsPrimary {
			stateCounts["primary"]++
		}
		if st.IsActive {
			stateCounts["active"]++
		} else {
			stateCounts["inactive"]++
		}
		ManagerDeadForCount.WithLabelValues(st.Name).Set(float64(st.DeadCount()))
	}
	for state, n := range stateCounts {
		ManagersTotal.WithLabelValues(state).Set(float64(n))
	}
}
