// Package orphan implements the Orphan Cleaner from spec.md §4.7: a
// periodic sweep that removes containers lacking a live association.
// Grounded on the teacher's internal/podman.ListContainers plus its
// cleanup-by-inspection idiom (Client.Run/RemoveContainer), generalized
// from the teacher's single-criterion prune to the three orphan
// criteria spec.md names.
package orphan

import (
	"context"
	"log"
	"time"

	"github.com/memstack/sandboxcore/internal/assoc"
	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/types"
)

// Stats reports one sweep's outcome (spec.md §4.7 "reports counts and
// errors through a small stats struct").
type Stats struct {
	Scanned          int
	RemovedOrphans   int // (a) missing memstack.project_id
	RemovedStale     int // (b) exited/dead/created past grace period
	RemovedUntracked int // (c) sandbox_id absent from the Association Store
	Errors           []string
}

// Config tunes one sweep.
type Config struct {
	GracePeriod     time.Duration
	DBChecksEnabled bool // enables criterion (c): check against the Association Store
}

// Cleaner runs periodic sweeps.
type Cleaner struct {
	runtime containerrt.Runtime
	store   assoc.Store
	cfg     Config
}

// New constructs a Cleaner.
func New(runtime containerrt.Runtime, store assoc.Store, cfg Config) *Cleaner {
	return &Cleaner{runtime: runtime, store: store, cfg: cfg}
}

// Sweep performs one pass, removing every orphaned container it finds
// and returning a Stats summary. A single container's removal failure
// is recorded in Stats.Errors and does not stop the sweep.
func (c *Cleaner) Sweep(ctx context.Context) Stats {
	var stats Stats

	containers, err := c.runtime.List(ctx, "", "")
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		return stats
	}
	stats.Scanned = len(containers)

	for _, cont := range containers {
		reason, shouldRemove := c.classify(ctx, cont)
		if !shouldRemove {
			continue
		}

		if err := c.runtime.Remove(ctx, cont.RuntimeID, true); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}
		log.Printf("orphan: removed container %s (%s)", cont.RuntimeID, reason)

		switch reason {
		case "missing project_id label":
			stats.RemovedOrphans++
		case "past grace period":
			stats.RemovedStale++
		case "sandbox_id not in association store":
			stats.RemovedUntracked++
		}
	}

	return stats
}

func (c *Cleaner) classify(ctx context.Context, cont types.Container) (reason string, remove bool) {
	if cont.IsOrphanLabeled() {
		return "missing project_id label", true
	}

	switch cont.State {
	case types.ContainerExited, types.ContainerDead, types.ContainerCreated:
		if time.Since(cont.CreatedAt) > c.cfg.GracePeriod {
			return "past grace period", true
		}
	}

	if c.cfg.DBChecksEnabled {
		sandboxID := cont.SandboxID()
		if sandboxID == "" {
			return "", false
		}
		a, err := c.store.FindBySandbox(ctx, sandboxID)
		if err != nil {
			return "", false
		}
		if a == nil {
			return "sandbox_id not in association store", true
		}
	}

	return "", false
}
