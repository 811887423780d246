package population

import (
	"time"

	"github.com/andywolf/spiralsync/internal/agent"
)

// AgentReport is the read-only view handed to reporting collaborators.
type AgentReport struct {
	ID             string        `json:"agent_id" yaml:"agent_id"`
	Status         agent.Status  `json:"status" yaml:"status"`
	Drift          time.Duration `json:"drift" yaml:"drift"`
	Stability      float64       `json:"stability" yaml:"stability"`
	Integrity      bool          `json:"integrity" yaml:"integrity"`
	EchoScore      float64       `json:"echo_score" yaml:"echo_score"`
	RecursionCount int           `json:"recursion_count" yaml:"recursion_count"`
}

// Report returns one AgentReport per agent in registration order. Every row
// is computed from a single snapshot of the population. It does not journal
// anything.
func (v *Validator[T]) Report() []AgentReport {
	snaps := v.Snapshots()
	integrity := integrityOf(snaps)
	scores := echoScoresOf(snaps)
	now := v.opts.now()

	reports := make([]AgentReport, 0, len(snaps))
	for _, snap := range snaps {
		reports = append(reports, AgentReport{
			ID:             snap.ID,
			Status:         snap.Status,
			Drift:          now.Sub(snap.LastSync),
			Stability:      snap.Stability,
			Integrity:      integrity[snap.ID],
			EchoScore:      scores[snap.ID],
			RecursionCount: snap.RecursionCount,
		})
	}
	return reports
}
