package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestStatus_CanTransitionTo(t *testing.T) {
	allowed := map[RequestStatus][]RequestStatus{
		RequestStatusImported: {RequestStatusRunning, RequestStatusError},
		RequestStatusRunning:  {RequestStatusFinished, RequestStatusStandby, RequestStatusError, RequestStatusRejected},
		RequestStatusStandby:  {RequestStatusRunning, RequestStatusRejected},
		RequestStatusError:    {RequestStatusRunning, RequestStatusRejected},
		RequestStatusFinished: {RequestStatusExported, RequestStatusError},
	}

	for _, from := range AllRequestStatuses() {
		for _, to := range AllRequestStatuses() {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestRequestStatus_Terminal(t *testing.T) {
	for _, s := range AllRequestStatuses() {
		assert.True(t, s.IsValid())
		if s.IsTerminal() {
			for _, to := range AllRequestStatuses() {
				assert.False(t, s.CanTransitionTo(to), "terminal %s must have no transitions", s)
			}
		}
	}
	assert.False(t, RequestStatus("UNKNOWN").IsValid())
}

func TestMustTransition_PanicsOnInvalid(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(*InvalidTransitionError)
		require.True(t, ok)
		assert.Equal(t, RequestStatusExported, err.From)
		assert.Equal(t, RequestStatusRunning, err.To)
		assert.Contains(t, err.Error(), "EXPORTED -> RUNNING")
	}()
	MustTransition(RequestStatusExported, RequestStatusRunning)
}

func TestRequest_TransitionTo_Timestamps(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	req := &Request{ID: uuid.New(), Status: RequestStatusImported}

	req.TransitionTo(RequestStatusRunning, now)
	require.NotNil(t, req.StartedAt)
	assert.Equal(t, now, *req.StartedAt)
	assert.Nil(t, req.EndedAt)

	later := now.Add(time.Minute)
	req.TransitionTo(RequestStatusFinished, later)
	require.NotNil(t, req.EndedAt)
	assert.Equal(t, later, *req.EndedAt)
	assert.Equal(t, now, *req.StartedAt, "StartedAt is kept")
	assert.Equal(t, later, req.UpdatedAt)
}

func TestRequest_TransitionTo_Panics(t *testing.T) {
	req := &Request{Status: RequestStatusImported}
	assert.Panics(t, func() { req.TransitionTo(RequestStatusFinished, time.Now()) })
	assert.Equal(t, RequestStatusImported, req.Status, "status must not change")
}

func TestRequest_Validate(t *testing.T) {
	valid := Request{OrderGUID: "o1", ProductGUID: "p1", Perimeter: "POLYGON((0 0,1 0,1 1,0 0))"}
	assert.NoError(t, valid.Validate())

	noGeom := valid
	noGeom.Perimeter = "  "
	assert.ErrorIs(t, noGeom.Validate(), ErrMissingGeometry)

	noRef := valid
	noRef.ProductGUID = ""
	assert.ErrorIs(t, noRef.Validate(), ErrMissingOrderRef)
}

func TestRequest_Apply(t *testing.T) {
	req := &Request{Parameters: map[string]string{"a": "1"}}
	remark := "checked"
	rejected := true

	got := req.Apply(RequestUpdate{
		Remark:     &remark,
		Parameters: map[string]string{"b": "2"},
	})
	assert.False(t, got)
	assert.Equal(t, "checked", req.Remark)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, req.Parameters)

	got = req.Apply(RequestUpdate{Rejected: &rejected})
	assert.True(t, got)
	assert.True(t, req.Rejected)
}

func TestRequest_Snapshot_IsIndependent(t *testing.T) {
	pid := uuid.New()
	req := &Request{ProcessID: &pid, Parameters: map[string]string{"k": "v"}}

	snap := req.Snapshot()
	snap.Parameters["k"] = "changed"
	*snap.ProcessID = uuid.New()

	assert.Equal(t, "v", req.Parameters["k"])
	assert.Equal(t, pid, *req.ProcessID)
}

func TestLookupField(t *testing.T) {
	req := &Request{
		ProductLabel: "Alpha123",
		Surface:      12.5,
		Parameters:   map[string]string{"Format": "DXF"},
	}

	fn, ok := LookupField("ProductLabel")
	require.True(t, ok)
	assert.Equal(t, "Alpha123", fn(req))

	fn, ok = LookupField("surface")
	require.True(t, ok)
	assert.Equal(t, "12.5", fn(req))

	fn, ok = LookupField("parameters.Format")
	require.True(t, ok)
	assert.Equal(t, "DXF", fn(req))

	_, ok = LookupField("parameters.")
	assert.False(t, ok)
	_, ok = LookupField("nosuchfield")
	assert.False(t, ok)

	assert.Contains(t, FieldNames(), "orderlabel")
}

func TestConnector_ImportDue(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	last := now.Add(-30 * time.Second)

	c := Connector{Active: true, ImportIntervalSec: 60, LastImportAt: &last}
	assert.False(t, c.ImportDue(now))
	assert.True(t, c.ImportDue(now.Add(30*time.Second)))

	c.LastImportAt = nil
	assert.True(t, c.ImportDue(now))

	c.Active = false
	assert.False(t, c.ImportDue(now))
}
