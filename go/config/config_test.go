package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const domainDoc = `
domain: webapp
workflows:
  feature:
    phases: [design, implement, verify]
    quality_gates: [tests-pass]
    parallelism: medium
  hotfix:
    phases: [implement]
    parallelism: sequential
default_agents: [cheap-general]
thresholds:
  completion_rate_target: 0.95
risk_patterns:
  high_risk: ["drop table", "rm -rf"]
  medium_risk: ["migrate"]
quota_allocation:
  feature: 0.7
  hotfix: 0.3
`

func writeConfig(t *testing.T, doc string) string {
	var path = filepath.Join(t.TempDir(), "domain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))
	return path
}

func TestLoadDomain(t *testing.T) {
	var d = Load(writeConfig(t, domainDoc))

	require.Equal(t, "webapp", d.Domain)
	require.Equal(t, 3, d.Workflows["feature"].WIPLimit())
	require.Equal(t, 1, d.Workflows["hotfix"].WIPLimit())
	require.Equal(t, []string{"drop table", "rm -rf"}, d.RiskPatterns.HighRisk)

	// Overridden threshold wins; unset thresholds keep defaults.
	require.Equal(t, 0.95, d.Thresholds.CompletionRateTarget)
	require.Equal(t, DefaultThresholds().QuotaUtilizationTarget, d.Thresholds.QuotaUtilizationTarget)
}

func TestLoadMalformedFallsBack(t *testing.T) {
	var d = Load(writeConfig(t, "workflows: [not: a: map"))
	require.Equal(t, Default(), d)
}

func TestLoadMissingFallsBack(t *testing.T) {
	var d = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Equal(t, Default(), d)
}

func TestLoadInvalidParallelismFallsBack(t *testing.T) {
	var d = Load(writeConfig(t, `
workflows:
  feature:
    parallelism: turbo
`))
	require.Equal(t, Default(), d)
}

func TestLoadOverAllocatedQuotaFallsBack(t *testing.T) {
	var d = Load(writeConfig(t, `
quota_allocation:
  a: 0.8
  b: 0.5
`))
	require.Equal(t, Default(), d)
}

func TestUnknownParallelismMapsToSequential(t *testing.T) {
	require.Equal(t, 1, Workflow{}.WIPLimit())
}
