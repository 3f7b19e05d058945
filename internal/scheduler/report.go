package scheduler

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/spotcycle/internal/ranking"
)

const reportTopN = 15

// cycleReport is the YAML document written after ranking each cycle.
type cycleReport struct {
	GeneratedAt time.Time            `yaml:"generated_at"`
	Scores      []ranking.TokenScore `yaml:"scores"`
}

// writeReport saves the top scores to the report file. Best-effort: a failed
// write is logged and the cycle continues.
func (s *Scheduler) writeReport(scores []ranking.TokenScore) {
	if s.cfg.ReportPath == "" {
		return
	}

	n := reportTopN
	if n > len(scores) {
		n = len(scores)
	}
	report := cycleReport{
		GeneratedAt: time.Now().UTC(),
		Scores:      scores[:n],
	}

	data, err := yaml.Marshal(&report)
	if err != nil {
		log.Warn().Err(err).Msg("Ranking report encode failed")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.ReportPath), 0o755); err != nil {
		log.Warn().Err(err).Msg("Ranking report dir failed")
		return
	}
	if err := os.WriteFile(s.cfg.ReportPath, data, 0o644); err != nil {
		log.Warn().Err(err).Msg("Ranking report write failed")
	}
}
