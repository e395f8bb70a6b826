package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boleta/internal/config"
	"boleta/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:        "sqlite",
		SQLiteDBPath:       "/tmp/x.db",
		AMQPURL:            "amqp://localhost",
		AMQPExchange:       "boleta",
		AMQPQueue:          "q",
		DataDirectory:      "seed",
		DefaultRatePercent: "12",
		BaseConcept:        "sueldo",
	}
	bc, err := FromAppConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, bc.Type)
	assert.Equal(t, "/tmp/x.db", bc.SQLiteDBPath)
	assert.Equal(t, "seed", bc.DataDirectory)
	assert.Equal(t, "12", bc.Rule.DefaultRatePercent.String())
	assert.Equal(t, "sueldo", bc.Rule.BaseConcept)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)
	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: "postgres"}.Validate())
	assert.Equal(t, []string{"memory", "sqlite"}, GetBackendTypeStrings())
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:          MemoryBackend,
		DataDirectory: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Nil(t, res.Publisher)
	assert.Nil(t, res.Cleanup)

	_, err = res.Backend.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrPayslipNotFound)
}

func TestCreateMemoryBackendSeedsTotals(t *testing.T) {
	dir := t.TempDir()
	doc := `employee: Ana Pérez
period: 2025-03
contribution:
  mode: auto
  rate: 9
lines:
  - description: Remuneración básica
    category: ingreso
    quantity: 1
    unit_amount: 1000.00
  - description: AFP
    category: deduccion
    quantity: 1
    unit_amount: 50.00
  - description: EsSalud
    category: aporte
    quantity: 1
    unit_amount: 0
    contribution_target: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marzo.yaml"), []byte(doc), 0o644))

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:          MemoryBackend,
		DataDirectory: dir,
	})
	require.NoError(t, err)

	list, err := res.Backend.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, core.FormattedTotals{
		Income:                "1000.00",
		Deductions:            "50.00",
		EmployerContributions: "90.00",
		NetPayable:            "950.00",
	}, list[0].Totals)
}

func TestCreateSQLiteBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "boleta.db"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Cleanup)
	defer res.Cleanup()

	assert.Nil(t, res.Publisher, "no AMQP URL means no publisher")
	require.NotNil(t, res.Ready)
	assert.NoError(t, res.Ready(context.Background()))

	p := &core.Payslip{
		ID:       "a",
		Employee: "Ana",
		Period:   core.Period{Year: 2025, Month: 1},
		Rule:     core.ContributionRule{Mode: core.ModeManual},
	}
	version, err := res.Backend.Save(context.Background(), p, core.ZeroTotals())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}
