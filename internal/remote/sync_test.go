package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianapps/resilience-core/internal/model"
	"github.com/meridianapps/resilience-core/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAuditStore struct {
	records  []model.AuditRecord
	pullErr  error
	inserted []model.AuditRecord
}

func (f *fakeAuditStore) Insert(_ context.Context, record model.AuditRecord) error {
	f.inserted = append(f.inserted, record)
	return nil
}

func (f *fakeAuditStore) RecentInterventions(_ context.Context, limit int) ([]model.AuditRecord, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeAuditStore) Close() error { return nil }

func auditRecord(id, action string) model.AuditRecord {
	return model.AuditRecord{
		ID:         id,
		Action:     action,
		EntityType: model.EntityTypeSecurityIntervention,
		Severity:   model.SeverityWarning,
		Source:     "resilience-core",
		CreatedAt:  time.Now().UTC(),
	}
}

func pushMsg(t *testing.T, record model.AuditRecord) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	return &nats.Msg{Subject: "audit.interventions.default", Data: data}
}

func TestSyncFromRemote_ReplacesCacheWholesale(t *testing.T) {
	st := store.NewMemoryStore(50, 50)
	st.AddIntervention(model.Intervention{ID: "stale"})

	audit := &fakeAuditStore{records: []model.AuditRecord{
		auditRecord("r1", "mtd-block"),
		auditRecord("r2", "state-reset"),
	}}
	e := NewSyncEngine(nil, audit, st, "audit.interventions.default", 50, nil, testLogger())
	e.SyncFromRemote(context.Background())

	ivs := st.Interventions()
	require.Len(t, ivs, 2)
	assert.Equal(t, "r1", ivs[0].ID)
	// The wholesale replace does not count as session activity.
	assert.Zero(t, st.SessionInterventionCount())
}

func TestSyncFromRemote_PullFailureKeepsLocalCache(t *testing.T) {
	st := store.NewMemoryStore(50, 50)
	st.AddIntervention(model.Intervention{ID: "local-1"})

	audit := &fakeAuditStore{pullErr: errors.New("connection refused")}
	e := NewSyncEngine(nil, audit, st, "audit.interventions.default", 50, nil, testLogger())

	assert.NotPanics(t, func() { e.SyncFromRemote(context.Background()) })
	assert.Len(t, st.Interventions(), 1)
}

func TestHandlePush_MergesNewRecord(t *testing.T) {
	st := store.NewMemoryStore(50, 50)
	e := NewSyncEngine(nil, nil, st, "audit.interventions.default", 50, nil, testLogger())

	var merged []model.Intervention
	e.OnMerge(func(iv model.Intervention) { merged = append(merged, iv) })

	e.handlePush(pushMsg(t, auditRecord("r1", "mtd-block")))

	require.Len(t, st.Interventions(), 1)
	assert.Equal(t, "r1", st.Interventions()[0].ID)
	assert.Equal(t, 1, st.SessionInterventionCount())
	require.Len(t, merged, 1)
	assert.Equal(t, "mtd-block", merged[0].Type)
}

func TestHandlePush_DuplicateIDLeavesCacheUnchanged(t *testing.T) {
	st := store.NewMemoryStore(50, 50)
	e := NewSyncEngine(nil, nil, st, "audit.interventions.default", 50, nil, testLogger())

	mergeCalls := 0
	e.OnMerge(func(model.Intervention) { mergeCalls++ })

	e.handlePush(pushMsg(t, auditRecord("r1", "mtd-block")))
	before := st.Interventions()

	// Same id again, e.g. the echo of our own publish.
	e.handlePush(pushMsg(t, auditRecord("r1", "mtd-block")))

	assert.Equal(t, before, st.Interventions())
	assert.Equal(t, 1, mergeCalls)
}

func TestHandlePush_IgnoresOtherEntityTypes(t *testing.T) {
	st := store.NewMemoryStore(50, 50)
	e := NewSyncEngine(nil, nil, st, "audit.interventions.default", 50, nil, testLogger())

	rec := auditRecord("r1", "invoice-created")
	rec.EntityType = "invoice"
	e.handlePush(pushMsg(t, rec))

	assert.Empty(t, st.Interventions())
}

func TestHandlePush_DropsMalformedPayload(t *testing.T) {
	st := store.NewMemoryStore(50, 50)
	e := NewSyncEngine(nil, nil, st, "audit.interventions.default", 50, nil, testLogger())

	assert.NotPanics(t, func() {
		e.handlePush(&nats.Msg{Data: []byte("not json")})
	})
	assert.Empty(t, st.Interventions())
}

func TestHandlePush_TrimsToCap(t *testing.T) {
	st := store.NewMemoryStore(50, 50)
	e := NewSyncEngine(nil, nil, st, "audit.interventions.default", 50, nil, testLogger())

	for i := 0; i < 55; i++ {
		e.handlePush(pushMsg(t, auditRecord(fmt.Sprintf("r-%02d", i), "state-reset")))
	}
	assert.Len(t, st.Interventions(), 50)
}
