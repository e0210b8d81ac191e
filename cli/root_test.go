package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// harness runs commands against one SQLite file with a clock that advances
// one second per reading.
type harness struct {
	t     *testing.T
	db    string
	env   string
	ticks atomic.Int64
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	return &harness{t: t, db: filepath.Join(dir, "ledger.db"), env: filepath.Join(dir, "absent.env")}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	opts := &RootOptions{clock: func() time.Time {
		return epoch.Add(time.Duration(h.ticks.Add(1)) * time.Second)
	}}
	cmd := newRootCommand(opts)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env", h.env, "--db", h.db, "--business", "shop-1", "--actor", "ops"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCommands_TextOutput(t *testing.T) {
	h := newHarness(t)
	g := golden(t)

	// GIVEN two variants
	out := h.mustRun("variant", "create", "tee-red-m", "--product", "tee", "--sku", "TEE-RED-M", "--qty", "12")
	g.Assert(t, "variant_create", []byte(out))
	h.mustRun("variant", "create", "tee-red-l", "--product", "tee", "--sku", "TEE-RED-L", "--qty", "3")

	// WHEN an order sells 5
	out = h.mustRun("mutate", "tee-red-m", "--delta", "-5", "--reason", "sale", "--order", "1042")
	g.Assert(t, "mutate", []byte(out))

	// AND a stock count is loaded with one unknown SKU and one bad quantity
	out, err := h.run("bulk-set", "--file", "testdata/stocktake.csv")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	g.Assert(t, "bulk_set", []byte(out))

	// THEN history, low stock and audit reflect every change
	g.Assert(t, "history", []byte(h.mustRun("history", "--variant", "tee-red-m")))
	g.Assert(t, "low_stock", []byte(h.mustRun("low-stock", "--threshold", "5")))
	g.Assert(t, "audit", []byte(h.mustRun("audit", "tee-red-m")))
	g.Assert(t, "variant_get", []byte(h.mustRun("variant", "get", "tee-red-m")))
}

func TestCommands_JSONOutput(t *testing.T) {
	h := newHarness(t)
	h.mustRun("variant", "create", "v1", "--product", "p1", "--qty", "4")

	out := h.mustRun("--format", "json", "mutate", "v1", "--set", "9", "--reason", "correction", "--note", "recount")

	var resp struct {
		Status string       `json:"status"`
		Data   MutationView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(4), resp.Data.PreviousQty)
	assert.Equal(t, int64(9), resp.Data.NewQty)
	assert.NotEmpty(t, resp.Data.EntryID)

	out = h.mustRun("--format", "json", "history")
	var history struct {
		Data []EntryView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history.Data, 1)
	assert.Equal(t, "recount", history.Data[0].Note)
	assert.Equal(t, "ops", history.Data[0].ActorID)
}

func TestCommands_Errors(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("mutate", "missing", "--delta", "1", "--reason", "restock")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [not_found]")

	out, err = h.run("--format", "json", "variant", "get", "missing")
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "not_found", resp.Error.Code)

	_, err = h.run("mutate", "v1", "--delta", "1", "--reason", "gift")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = h.run("--format", "yaml", "low-stock")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = h.run("--driver", "postgres", "low-stock")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = h.run("mutate", "v1", "--delta", "1", "--set", "2", "--reason", "adjustment")
	assert.Error(t, err, "--delta and --set are mutually exclusive")

	_, err = h.run("bulk-set", "--file", "testdata/missing.csv")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMutate_NegativeSalesSetting(t *testing.T) {
	t.Setenv("LEDGER_ALLOW_NEGATIVE_SALES", "")
	h := newHarness(t)
	h.mustRun("variant", "create", "v1", "--product", "p1", "--qty", "1")

	// GIVEN the default policy, an oversell is rejected
	out, err := h.run("mutate", "v1", "--delta", "-3", "--reason", "sale", "--order", "o-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [insufficient_stock]")

	// WHEN negative sales are enabled in the environment
	t.Setenv("LEDGER_ALLOW_NEGATIVE_SALES", "true")
	out = h.mustRun("--format", "json", "mutate", "v1", "--delta", "-3", "--reason", "sale", "--order", "o-1")

	// THEN the same sale is accepted
	var resp struct {
		Data MutationView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(1), resp.Data.PreviousQty)
	assert.Equal(t, int64(-2), resp.Data.NewQty)

	// AND replaying the order line is reported as already applied
	out, err = h.run("mutate", "v1", "--delta", "-3", "--reason", "sale", "--order", "o-1")
	require.Error(t, err)
	assert.Contains(t, out, "Error [already_applied]")
}

func TestRoot_InvalidEnvironment(t *testing.T) {
	t.Setenv("LEDGER_MAX_ATTEMPTS", "many")
	h := newHarness(t)

	_, err := h.run("low-stock")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAudit_DeletedVariant(t *testing.T) {
	h := newHarness(t)
	h.mustRun("variant", "create", "v1", "--product", "p1", "--qty", "2")
	h.mustRun("mutate", "v1", "--delta", "3", "--reason", "restock")
	h.mustRun("variant", "delete", "v1")

	out := h.mustRun("audit", "v1")
	assert.Contains(t, out, "status:  consistent (variant deleted)")
	assert.NotContains(t, out, "current:")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", assert.AnError)))
}
