package projection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/hosttest"
	"github.com/scaleformeter/scaleformeter/pkg/core"
)

type fakePeer struct {
	mu        sync.Mutex
	accept    bool
	err       error
	confirmed []core.NetworkID
	deletes   int
	entered   chan struct{}
	release   chan struct{}
}

func (p *fakePeer) ConfirmSpawn(ctx context.Context, id core.NetworkID) (bool, error) {
	p.mu.Lock()
	p.confirmed = append(p.confirmed, id)
	entered, release := p.entered, p.release
	p.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return p.accept, p.err
}

func (p *fakePeer) DeleteAllOwned() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes++
	return nil
}

func (p *fakePeer) Deletes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deletes
}

func (p *fakePeer) Confirmed() []core.NetworkID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.NetworkID(nil), p.confirmed...)
}

var (
	sedan = core.VehicleFrame{
		Handle:     7,
		Exists:     true,
		Dimensions: mgl64.Vec3{2, 4, 1.5},
	}
	preset = core.OverlayPreset{
		Name:     "Default",
		Enabled:  true,
		Opacity:  0.8,
		Offset3D: core.Offset3D{X: 0.5, Y: 0.25, Z: 1, Rot: 45, Scale: 1},
	}
)

func newLifecycle(t *testing.T, scale bool) (*Lifecycle, *hosttest.Props, *fakePeer) {
	t.Helper()
	timeouts := config.DefaultTimeouts()
	timeouts.ModelLoad = 20 * time.Millisecond
	timeouts.Replication = 20 * time.Millisecond
	timeouts.PollInterval = time.Millisecond
	timeouts.DeleteGrace = 5 * time.Millisecond
	timeouts.RequestTimeout = time.Second

	props := hosttest.NewProps()
	peer := &fakePeer{accept: true}
	l := New(Dependencies{
		Props:             props,
		Peer:              peer,
		Timeouts:          timeouts,
		ScaleToDimensions: scale,
	})
	return l, props, peer
}

func TestCreate_Attaches(t *testing.T) {
	l, props, peer := newLifecycle(t, true)

	require.NoError(t, l.Create(context.Background(), sedan, preset))

	assert.Equal(t, Attached, l.State())
	h, id, ok := l.Object()
	require.True(t, ok)
	assert.True(t, id.Valid())
	assert.Equal(t, []core.NetworkID{id}, peer.Confirmed())

	assert.False(t, props.Collision(h))
	assert.Equal(t, 204, props.Alpha(h))
	assert.Equal(t, 1, props.ModelReleased(PropModel))
	assert.NotZero(t, l.Target())

	att, ok := props.AttachmentOf(h)
	require.True(t, ok)
	assert.Equal(t, sedan.Handle, att.Parent)
	assert.Equal(t, AttachBone, att.Bone)
	assert.Equal(t, mgl64.Vec3{1, 1, 1.5}, att.Offset)
	assert.Equal(t, mgl64.Vec3{0, 0, 45}, att.Rotation)
}

func TestAttachOffset(t *testing.T) {
	off := preset.Offset3D

	assert.Equal(t, mgl64.Vec3{0.5, 0.25, 1}, AttachOffset(sedan, off, false))
	assert.Equal(t, mgl64.Vec3{1, 1, 1.5}, AttachOffset(sedan, off, true))

	bike := sedan
	bike.Model = core.ModelBike
	assert.Equal(t, mgl64.Vec3{1.3, -1, 0.5}, AttachOffset(bike, off, true))
}

func TestCreate_ModelLoadTimeout(t *testing.T) {
	l, props, peer := newLifecycle(t, true)
	props.NeverLoadModels(true)

	err := l.Create(context.Background(), sedan, preset)
	assert.True(t, errors.Is(err, core.ErrResourceLoadTimeout))
	assert.Equal(t, Failed, l.State())
	assert.Empty(t, props.Live())
	assert.Empty(t, peer.Confirmed())
}

func TestCreate_ReplicationTimeout(t *testing.T) {
	l, props, peer := newLifecycle(t, true)
	props.NeverReplicate(true)

	err := l.Create(context.Background(), sedan, preset)
	assert.True(t, errors.Is(err, core.ErrReplicationTimeout))
	assert.Equal(t, Failed, l.State())
	assert.Empty(t, props.Live(), "local prop is removed")
	assert.Empty(t, peer.Confirmed())

	props.NeverReplicate(false)
	require.True(t, l.ClearFailure())
	require.NoError(t, l.Create(context.Background(), sedan, preset))
	assert.Equal(t, Attached, l.State())
}

func TestCreate_RejectedByPeer(t *testing.T) {
	l, props, peer := newLifecycle(t, true)
	peer.accept = false

	err := l.Create(context.Background(), sedan, preset)
	assert.True(t, errors.Is(err, core.ErrRejectedByPeer))
	assert.Equal(t, Failed, l.State())
	assert.Empty(t, props.Live())
	assert.Zero(t, peer.Deletes(), "a rejection leaves nothing on the server")
}

func TestCreate_FailureIsLatched(t *testing.T) {
	l, props, peer := newLifecycle(t, true)
	peer.accept = false
	require.Error(t, l.Create(context.Background(), sedan, preset))

	peer.accept = true
	for i := 0; i < 3; i++ {
		err := l.Create(context.Background(), sedan, preset)
		assert.True(t, errors.Is(err, ErrCreateFailed))
	}
	assert.Len(t, peer.Confirmed(), 1)
	assert.Empty(t, props.Live())
	assert.Equal(t, Failed, l.State())
	assert.False(t, l.Busy())

	require.NoError(t, l.Delete(context.Background()))
	assert.Equal(t, Failed, l.State(), "delete does not clear a failure")

	assert.True(t, l.ClearFailure())
	assert.False(t, l.ClearFailure())
	require.NoError(t, l.Create(context.Background(), sedan, preset))
	assert.Len(t, peer.Confirmed(), 2)
	assert.Equal(t, Attached, l.State())
}

func TestApplyProjection_ClearsFailure(t *testing.T) {
	l, props, _ := newLifecycle(t, true)
	props.FailSpawns(true)
	require.Error(t, l.Create(context.Background(), sedan, preset))
	require.Equal(t, Failed, l.State())

	l.ApplyProjection(false, preset)
	assert.Equal(t, Idle, l.State())
}

func TestCreate_PeerError(t *testing.T) {
	l, props, peer := newLifecycle(t, true)
	peer.err = errors.New("connection closed")

	err := l.Create(context.Background(), sedan, preset)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
	assert.Empty(t, props.Live())
	assert.Equal(t, 1, peer.Deletes(), "server is asked to drop a prop it may have recorded")
	assert.Equal(t, Failed, l.State())
}

func TestCreate_ConfirmTimeoutDeletesOnServer(t *testing.T) {
	l, props, peer := newLifecycle(t, true)
	l.deps.Timeouts.RequestTimeout = 10 * time.Millisecond
	peer.release = make(chan struct{})
	defer close(peer.release)

	err := l.Create(context.Background(), sedan, preset)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, peer.Deletes())
	assert.Empty(t, props.Live())
}

func TestCreate_SpawnFailure(t *testing.T) {
	l, props, _ := newLifecycle(t, true)
	props.FailSpawns(true)

	err := l.Create(context.Background(), sedan, preset)
	assert.True(t, errors.Is(err, hosttest.ErrSpawnFailed))
	assert.Equal(t, 1, props.ModelReleased(PropModel))
	assert.Equal(t, Failed, l.State())
}

func TestDelete_Idempotent(t *testing.T) {
	l, _, peer := newLifecycle(t, true)
	require.NoError(t, l.Create(context.Background(), sedan, preset))

	require.NoError(t, l.Delete(context.Background()))
	assert.Equal(t, Idle, l.State())
	assert.Equal(t, 1, peer.Deletes())

	require.NoError(t, l.Delete(context.Background()))
	assert.Equal(t, 1, peer.Deletes(), "no prop, no request")
	_, _, ok := l.Object()
	assert.False(t, ok)
}

func TestBusy_CreateAndDeleteExclusive(t *testing.T) {
	l, _, peer := newLifecycle(t, true)
	peer.entered = make(chan struct{})
	peer.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- l.Create(context.Background(), sedan, preset) }()
	<-peer.entered

	assert.True(t, l.Busy())
	assert.Equal(t, Creating, l.State())
	assert.True(t, errors.Is(l.Delete(context.Background()), core.ErrBusy))
	assert.True(t, errors.Is(l.Create(context.Background(), sedan, preset), core.ErrBusy))

	close(peer.release)
	require.NoError(t, <-done)
	assert.False(t, l.Busy())
	assert.Equal(t, Attached, l.State())
}

func TestDelete_ConcurrentCallsDeleteOnce(t *testing.T) {
	l, _, peer := newLifecycle(t, true)
	require.NoError(t, l.Create(context.Background(), sedan, preset))

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		busy int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Delete(context.Background())
			if errors.Is(err, core.ErrBusy) {
				mu.Lock()
				busy++
				mu.Unlock()
				return
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peer.Deletes())
	assert.Equal(t, Idle, l.State())
	assert.Less(t, busy, callers)
}

func TestCreate_FlatSwitchWhileCreating(t *testing.T) {
	l, props, peer := newLifecycle(t, true)
	peer.entered = make(chan struct{})
	peer.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- l.Create(context.Background(), sedan, preset) }()
	<-peer.entered

	l.ApplyProjection(false, preset)
	close(peer.release)
	require.NoError(t, <-done)

	h, _, ok := l.Object()
	require.True(t, ok)
	assert.Equal(t, 0, props.Alpha(h), "flat switch during creation is kept")
}

func TestApplyProjection_Opacity(t *testing.T) {
	l, props, _ := newLifecycle(t, true)
	l.ApplyProjection(false, preset)

	require.NoError(t, l.Create(context.Background(), sedan, preset))
	h, _, _ := l.Object()

	l.ApplyProjection(false, preset)
	assert.Equal(t, 0, props.Alpha(h))

	l.ApplyProjection(true, preset)
	assert.Equal(t, 204, props.Alpha(h))
}

func TestApplyPreset_ReattachesToLastVehicle(t *testing.T) {
	l, props, _ := newLifecycle(t, false)
	require.NoError(t, l.Create(context.Background(), sedan, preset))
	h, _, _ := l.Object()

	moved := preset
	moved.Offset3D = core.Offset3D{X: -1, Y: 2, Z: 0.5, Rot: 180}
	moved.Opacity = 0.2
	l.ApplyPreset("moved", moved)

	att, _ := props.AttachmentOf(h)
	assert.Equal(t, mgl64.Vec3{-1, 2, 0.5}, att.Offset)
	assert.Equal(t, mgl64.Vec3{0, 0, 180}, att.Rotation)
	assert.Equal(t, 51, props.Alpha(h))
}

func TestReattach_OnDimensionChange(t *testing.T) {
	l, props, _ := newLifecycle(t, true)
	require.NoError(t, l.Create(context.Background(), sedan, preset))
	h, _, _ := l.Object()

	assert.False(t, l.Reattach(sedan, preset))

	bigger := sedan
	bigger.Dimensions = mgl64.Vec3{4, 8, 2}
	assert.True(t, l.Reattach(bigger, preset))

	att, _ := props.AttachmentOf(h)
	assert.Equal(t, mgl64.Vec3{2, 2, 2}, att.Offset)
}

func TestUpdateAttachment_NoObject(t *testing.T) {
	l, props, _ := newLifecycle(t, true)
	l.UpdateAttachment(sedan, preset)
	assert.Empty(t, props.Live())
	assert.False(t, l.Reattach(sedan, preset))
}

func TestVanishedAndShutdown(t *testing.T) {
	l, props, _ := newLifecycle(t, true)
	require.NoError(t, l.Create(context.Background(), sedan, preset))
	h, _, _ := l.Object()
	assert.False(t, l.Vanished())

	l.Shutdown()
	assert.False(t, props.Exists(h))
	assert.Equal(t, Idle, l.State())

	require.NoError(t, l.Create(context.Background(), sedan, preset))
	h, _, _ = l.Object()
	props.Delete(h)
	assert.True(t, l.Vanished())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "creating", Creating.String())
	assert.Equal(t, "attached", Attached.String())
	assert.Equal(t, "deleting", Deleting.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(42).String())
}
