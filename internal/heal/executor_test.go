package heal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianapps/resilience-core/internal/model"
	"github.com/meridianapps/resilience-core/internal/snapshot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRecorder struct {
	recorded []model.Intervention
}

func (f *fakeRecorder) Record(_ context.Context, actionType, message string, details map[string]interface{}) model.Intervention {
	iv := model.Intervention{ID: actionType, Type: actionType, Message: message, Details: details}
	f.recorded = append(f.recorded, iv)
	return iv
}

type fakeNavigator struct {
	redirects []string
}

func (f *fakeNavigator) Redirect(path string, _ time.Duration) {
	f.redirects = append(f.redirects, path)
}

type fakeNotifier struct {
	notices []string
}

func (f *fakeNotifier) Notify(message string) {
	f.notices = append(f.notices, message)
}

func newTestExecutor(t *testing.T) (*Executor, *fakeRecorder, *fakeNavigator, *fakeNotifier, *snapshot.Store) {
	t.Helper()
	snaps, err := snapshot.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	rec := &fakeRecorder{}
	nav := &fakeNavigator{}
	not := &fakeNotifier{}
	return NewExecutor(nil, snaps, rec, nav, not, testLogger()), rec, nav, not, snaps
}

func runtimeEntry(message string) model.LogEntry {
	return model.LogEntry{ID: "e1", Message: message, Severity: model.SeverityCritical, Kind: model.KindRuntime}
}

func TestAnalyzeAndHeal_QuotaExceededTriggersStorageCleanup(t *testing.T) {
	ex, rec, _, not, _ := newTestExecutor(t)

	healed := ex.AnalyzeAndHeal(context.Background(), runtimeEntry("QuotaExceededError: quota exceeded"))
	assert.True(t, healed)
	require.Len(t, rec.recorded, 1)
	assert.Equal(t, ActionStorageCleanup, rec.recorded[0].Type)
	assert.Equal(t, "QuotaExceededError: quota exceeded", rec.recorded[0].Details["trigger"])
	assert.NotEmpty(t, not.notices)
}

func TestAnalyzeAndHeal_StorageCleanupIsIdempotent(t *testing.T) {
	ex, rec, _, _, snaps := newTestExecutor(t)

	// Storage already empty: cleanup twice must not fail.
	assert.True(t, ex.AnalyzeAndHeal(context.Background(), runtimeEntry("storage full")))
	assert.True(t, ex.AnalyzeAndHeal(context.Background(), runtimeEntry("the storage full again")))
	assert.Len(t, rec.recorded, 2)
	assert.Zero(t, snaps.Count())
}

func TestAnalyzeAndHeal_StorageCleanupEvictsOldestSnapshot(t *testing.T) {
	ex, _, _, _, snaps := newTestExecutor(t)

	require.NoError(t, snaps.Save(snapshot.State{SavedAt: time.Now()}))
	require.NoError(t, snaps.Save(snapshot.State{SavedAt: time.Now()}))
	require.Equal(t, 2, snaps.Count())

	ex.AnalyzeAndHeal(context.Background(), runtimeEntry("quota exceeded"))
	assert.Equal(t, 1, snaps.Count())
}

func TestAnalyzeAndHeal_RenderLoopSchedulesRedirect(t *testing.T) {
	ex, rec, nav, _, _ := newTestExecutor(t)

	healed := ex.AnalyzeAndHeal(context.Background(), runtimeEntry("Too many re-renders detected"))
	assert.True(t, healed)
	require.Len(t, rec.recorded, 1)
	assert.Equal(t, ActionStateReset, rec.recorded[0].Type)
	assert.Equal(t, []string{"/"}, nav.redirects)
}

func TestAnalyzeAndHeal_RouteNotFoundRecordsOnly(t *testing.T) {
	ex, rec, nav, _, _ := newTestExecutor(t)

	healed := ex.AnalyzeAndHeal(context.Background(), runtimeEntry("route /old-page not found"))
	assert.True(t, healed)
	require.Len(t, rec.recorded, 1)
	assert.Equal(t, ActionRedirect, rec.recorded[0].Type)
	assert.Empty(t, nav.redirects)
}

func TestAnalyzeAndHeal_RouteAloneDoesNotMatch(t *testing.T) {
	ex, rec, _, _, _ := newTestExecutor(t)

	// The redirect signature requires both substrings.
	assert.False(t, ex.AnalyzeAndHeal(context.Background(), runtimeEntry("route table updated")))
	assert.Empty(t, rec.recorded)
}

func TestAnalyzeAndHeal_AtMostOneRemediation(t *testing.T) {
	ex, rec, _, _, _ := newTestExecutor(t)

	// Message matches both the cleanup and reset signatures; only the first
	// rule fires.
	ex.AnalyzeAndHeal(context.Background(), runtimeEntry("quota exceeded after infinite loop"))
	require.Len(t, rec.recorded, 1)
	assert.Equal(t, ActionStorageCleanup, rec.recorded[0].Type)
}

func TestAnalyzeAndHeal_UnknownSignatureIsRecordedOnly(t *testing.T) {
	ex, rec, nav, not, _ := newTestExecutor(t)

	assert.False(t, ex.AnalyzeAndHeal(context.Background(), runtimeEntry("segmentation fault")))
	assert.Empty(t, rec.recorded)
	assert.Empty(t, nav.redirects)
	assert.Empty(t, not.notices)
}

func TestLoadRulesFile_AppendsAfterDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - action: state-reset
    any_of:
      - ["maximum call stack"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	assert.Len(t, rules, len(DefaultRules())+1)
	assert.Equal(t, ActionStateReset, rules[len(rules)-1].Action)
}

func TestLoadRulesFile_RejectsUnknownAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - action: reboot
    any_of:
      - ["kernel panic"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadRulesFile(path)
	assert.Error(t, err)
}
