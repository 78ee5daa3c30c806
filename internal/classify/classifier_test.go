package classify

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianapps/resilience-core/internal/model"
	"github.com/meridianapps/resilience-core/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClassifier(t *testing.T) (*Classifier, *store.MemoryStore, *time.Time) {
	t.Helper()
	st := store.NewMemoryStore(50, 50)
	c := NewClassifier(st, 5*time.Second, nil, testLogger())
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, st, &now
}

func TestClassify_DedupInsideWindow(t *testing.T) {
	c, st, now := newTestClassifier(t)

	_, ok := c.Classify(model.RuntimeFault("connection refused", ""))
	require.True(t, ok)

	*now = now.Add(2 * time.Second)
	_, ok = c.Classify(model.RuntimeFault("connection refused", ""))
	assert.False(t, ok)
	assert.Len(t, st.UnresolvedEntries(), 1)
}

func TestClassify_AcceptedAgainAfterWindow(t *testing.T) {
	c, st, now := newTestClassifier(t)

	_, ok := c.Classify(model.RuntimeFault("connection refused", ""))
	require.True(t, ok)

	*now = now.Add(6 * time.Second)
	_, ok = c.Classify(model.RuntimeFault("connection refused", ""))
	assert.True(t, ok)
	assert.Len(t, st.UnresolvedEntries(), 2)
}

func TestClassify_SeverityAliases(t *testing.T) {
	c, _, _ := newTestClassifier(t)

	cases := map[string]model.Severity{
		"high":     model.SeverityCritical,
		"critical": model.SeverityCritical,
		"medium":   model.SeverityWarning,
		"warning":  model.SeverityWarning,
		"bogus":    model.SeverityInfo,
		"":         model.SeverityInfo,
	}
	i := 0
	for hint, want := range cases {
		sig := model.RuntimeFault("fault "+hint+string(rune('a'+i)), "")
		sig.SeverityHint = hint
		entry, ok := c.Classify(sig)
		require.True(t, ok)
		assert.Equal(t, want, entry.Severity, "hint %q", hint)
		i++
	}
}

func TestClassify_MalformedInputDegrades(t *testing.T) {
	c, _, _ := newTestClassifier(t)

	entry, ok := c.Classify(model.Signal{Kind: model.SignalRuntimeFault})
	require.True(t, ok)
	assert.Equal(t, UnknownMessage, entry.Message)
	assert.Equal(t, model.SeverityInfo, entry.Severity)
}

func TestClassify_ContentFaultIsWarning(t *testing.T) {
	c, _, _ := newTestClassifier(t)

	entry, ok := c.Classify(model.ContentFault("checkout.title", "de"))
	require.True(t, ok)
	assert.Equal(t, model.KindContent, entry.Kind)
	assert.Equal(t, model.SeverityWarning, entry.Severity)
	assert.Contains(t, entry.Message, "checkout.title")
}

func TestClassify_TrapAlwaysCriticalSecurity(t *testing.T) {
	c, _, _ := newTestClassifier(t)

	entry, ok := c.Classify(model.TrapActivation("trap-1", map[string]string{"nonce": "n"}))
	require.True(t, ok)
	assert.Equal(t, model.KindSecurity, entry.Kind)
	assert.Equal(t, model.SeverityCritical, entry.Severity)
	assert.Equal(t, "n", entry.Context["nonce"])
}

func TestClassify_SecurityNeverCollapsesAgainstRuntime(t *testing.T) {
	c, st, _ := newTestClassifier(t)

	runtime := model.RuntimeFault("Honeytoken activated: trap-1", "")
	_, ok := c.Classify(runtime)
	require.True(t, ok)

	// Same message text, security kind: both entries must exist.
	_, ok = c.Classify(model.TrapActivation("trap-1", nil))
	assert.True(t, ok)
	assert.Len(t, st.UnresolvedEntries(), 2)
}

func TestClassify_InvalidateReopensWindow(t *testing.T) {
	c, st, _ := newTestClassifier(t)

	entry, ok := c.Classify(model.RuntimeFault("boom", ""))
	require.True(t, ok)

	resolved, ok := st.Resolve(entry.ID)
	require.True(t, ok)
	c.Invalidate(resolved)

	// Immediately resubmitting the same message is accepted.
	_, ok = c.Classify(model.RuntimeFault("boom", ""))
	assert.True(t, ok)
}

func TestClassify_ResolveOlderKeepsWindowOfNewerDuplicate(t *testing.T) {
	c, st, now := newTestClassifier(t)

	older, ok := c.Classify(model.RuntimeFault("boom", ""))
	require.True(t, ok)

	*now = now.Add(6 * time.Second)
	_, ok = c.Classify(model.RuntimeFault("boom", ""))
	require.True(t, ok)

	// Resolving the older duplicate must not reopen the window while the
	// newer entry is still unresolved and inside it.
	resolved, ok := st.Resolve(older.ID)
	require.True(t, ok)
	c.Invalidate(resolved)

	*now = now.Add(500 * time.Millisecond)
	_, ok = c.Classify(model.RuntimeFault("boom", ""))
	assert.False(t, ok)
	assert.Len(t, st.UnresolvedEntries(), 1)

	// Once the newer entry's window has passed, the message is accepted.
	*now = now.Add(6 * time.Second)
	_, ok = c.Classify(model.RuntimeFault("boom", ""))
	assert.True(t, ok)
}

func TestClassify_ResetPurgesDedupState(t *testing.T) {
	c, st, _ := newTestClassifier(t)

	_, ok := c.Classify(model.RuntimeFault("boom", ""))
	require.True(t, ok)

	st.ClearAll()
	c.Reset()

	_, ok = c.Classify(model.RuntimeFault("boom", ""))
	assert.True(t, ok)
	assert.Len(t, st.UnresolvedEntries(), 1)
}
