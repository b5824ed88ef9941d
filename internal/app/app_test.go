package app

import (
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/eightball/internal/capture"
	"github.com/ayusman/eightball/internal/detector"
	"github.com/ayusman/eightball/internal/profile"
	"github.com/ayusman/eightball/internal/store"
	"github.com/ayusman/eightball/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()

	if cfg.Camera == nil {
		cfg.Camera = capture.NewMockCamera(nil, false)
	}
	a := New(cfg)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew_DefaultProfile(t *testing.T) {
	a := newTestApp(t, Config{})

	if a.ProfileName() != profile.DefaultName {
		t.Errorf("ProfileName() = %q, want %q", a.ProfileName(), profile.DefaultName)
	}
	if a.Detector() == nil {
		t.Fatal("detector should be set")
	}
	if a.IsEnabled() {
		t.Error("detection should start disabled")
	}
}

func TestNew_UnknownProfileFallsBack(t *testing.T) {
	a := newTestApp(t, Config{Profile: "purple"})

	if a.ProfileName() != profile.DefaultName {
		t.Errorf("ProfileName() = %q, want fallback %q", a.ProfileName(), profile.DefaultName)
	}
	if a.Detector() == nil {
		t.Fatal("fallback detector should be set")
	}
}

func TestNew_ActiveProfileFromSettings(t *testing.T) {
	s := newTestStore(t)
	if err := s.Settings().Set(store.SettingActiveProfile, "blue"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	a := newTestApp(t, Config{Store: s})

	if a.ProfileName() != "blue" {
		t.Errorf("ProfileName() = %q, want blue", a.ProfileName())
	}
}

func TestUseProfile(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, Config{Store: s})

	if err := a.UseProfile("blue"); err != nil {
		t.Fatalf("UseProfile(blue) error = %v", err)
	}
	if a.ProfileName() != "blue" {
		t.Errorf("ProfileName() = %q, want blue", a.ProfileName())
	}

	td, ok := a.Detector().(*detector.TableDetector)
	if !ok {
		t.Fatalf("detector type = %T, want *detector.TableDetector", a.Detector())
	}
	if td.Config().Range.Lower.H != 90 {
		t.Errorf("lower hue = %d, want 90", td.Config().Range.Lower.H)
	}

	saved, err := s.Settings().Get(store.SettingActiveProfile)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if saved != "blue" {
		t.Errorf("saved profile = %q, want blue", saved)
	}

	if err := a.UseProfile("purple"); !errors.Is(err, profile.ErrUnknownProfile) {
		t.Errorf("UseProfile(purple) error = %v, want ErrUnknownProfile", err)
	}
	if a.ProfileName() != "blue" {
		t.Error("failed switch should keep the previous profile")
	}
}

func TestProcessFrame_MockDetector(t *testing.T) {
	a := newTestApp(t, Config{})

	mock := detector.NewMockDetector()
	mock.SetContour(detector.RectangleContour(image.Rect(100, 100, 540, 380)), 123200)
	a.SetDetector(mock)

	frame := testutil.BlankFrame(640, 480)
	defer frame.Close()

	snap, err := a.ProcessFrame(frame)
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}

	if !snap.Detection.Found {
		t.Fatal("expected a table")
	}
	if snap.Detection.Area != 123200 {
		t.Errorf("Area = %v, want 123200", snap.Detection.Area)
	}
	if len(snap.Detection.Corners) != 4 {
		t.Errorf("corners = %d, want 4", len(snap.Detection.Corners))
	}
	if len(snap.JPEG) == 0 {
		t.Error("snapshot should carry an overlay JPEG")
	}
	if snap.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", snap.Sequence)
	}
	if mock.Calls() != 1 {
		t.Errorf("detector calls = %d, want 1", mock.Calls())
	}

	latest, ok := a.Latest()
	if !ok {
		t.Fatal("Latest() should report a snapshot")
	}
	if latest.Sequence != snap.Sequence {
		t.Errorf("Latest().Sequence = %d, want %d", latest.Sequence, snap.Sequence)
	}
}

func TestProcessFrame_NoCarryOver(t *testing.T) {
	a := newTestApp(t, Config{})

	mock := detector.NewMockDetector()
	mock.SetContour(detector.RectangleContour(image.Rect(100, 100, 540, 380)), 123200)
	a.SetDetector(mock)

	frame := testutil.BlankFrame(640, 480)
	defer frame.Close()

	if snap, _ := a.ProcessFrame(frame); !snap.Detection.Found {
		t.Fatal("first frame should find a table")
	}

	mock.SetContour(nil, 0)
	snap, err := a.ProcessFrame(frame)
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if snap.Detection.Found {
		t.Error("second frame must not reuse the earlier detection")
	}
}

func TestProcessFrame_DetectorError(t *testing.T) {
	a := newTestApp(t, Config{})

	mock := detector.NewMockDetector()
	mock.SetError(detector.ErrInvalidInput)
	a.SetDetector(mock)

	frame := testutil.BlankFrame(64, 48)
	defer frame.Close()

	if _, err := a.ProcessFrame(frame); !errors.Is(err, detector.ErrInvalidInput) {
		t.Errorf("ProcessFrame() error = %v, want ErrInvalidInput", err)
	}
	if _, ok := a.Latest(); ok {
		t.Error("failed frames should not produce a snapshot")
	}
}

func TestProcessFrame_SyntheticTable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv pipeline test")
	}

	a := newTestApp(t, Config{})

	frame, err := testutil.TableFrame()
	if err != nil {
		t.Fatalf("TableFrame() error = %v", err)
	}
	defer frame.Close()

	before := frame.ToBytes()

	snap, err := a.ProcessFrame(frame)
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if !snap.Detection.Found {
		t.Fatal("expected the synthetic table to be found")
	}
	if len(snap.Detection.Corners) != 4 {
		t.Errorf("corners = %d, want 4", len(snap.Detection.Corners))
	}

	if string(before) != string(frame.ToBytes()) {
		t.Error("ProcessFrame must not draw on the input frame")
	}
}

func TestInspectFrame_Mask(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv pipeline test")
	}

	a := newTestApp(t, Config{})

	frame, err := testutil.TableFrame()
	if err != nil {
		t.Fatalf("TableFrame() error = %v", err)
	}
	defer frame.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	snap, err := a.InspectFrame(frame, &mask)
	if err != nil {
		t.Fatalf("InspectFrame() error = %v", err)
	}
	if !snap.Detection.Found {
		t.Fatal("expected the synthetic table to be found")
	}

	if mask.Rows() != frame.Rows() || mask.Cols() != frame.Cols() {
		t.Errorf("mask size = %dx%d, want %dx%d", mask.Cols(), mask.Rows(), frame.Cols(), frame.Rows())
	}
	if mask.Channels() != 1 {
		t.Errorf("mask channels = %d, want 1", mask.Channels())
	}
	if v := mask.GetUCharAt(240, 320); v != 255 {
		t.Errorf("mask inside table = %d, want 255", v)
	}
	if v := mask.GetUCharAt(10, 10); v != 0 {
		t.Errorf("mask outside table = %d, want 0", v)
	}

	latest, ok := a.Latest()
	if !ok || latest.Sequence != snap.Sequence {
		t.Errorf("InspectFrame should publish the snapshot, got %+v", latest)
	}
}

func TestSubscribe(t *testing.T) {
	a := newTestApp(t, Config{})
	a.SetDetector(detector.NewMockDetector())

	var mu sync.Mutex
	var got []uint64
	unsubscribe := a.Subscribe(func(s Snapshot) {
		mu.Lock()
		got = append(got, s.Sequence)
		mu.Unlock()
	})

	frame := testutil.BlankFrame(64, 48)
	defer frame.Close()

	a.ProcessFrame(frame)
	a.ProcessFrame(frame)
	unsubscribe()
	a.ProcessFrame(frame)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("received sequences %v, want [1 2]", got)
	}
}

func TestStartStop_MockCamera(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline timing test")
	}

	frames, err := testutil.TableSequence(3, 0)
	if err != nil {
		t.Fatalf("TableSequence() error = %v", err)
	}
	defer testutil.CloseAll(frames)

	cam := capture.NewMockCamera(frames, false)
	a := newTestApp(t, Config{Camera: cam})
	a.SetEnabled(true)

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish after the source ran out")
	}

	if a.Running() {
		t.Error("Running() should be false once the source ran out")
	}
	if cam.IsOpen() {
		t.Error("camera should be closed once the source ran out")
	}

	snap, ok := a.Latest()
	if !ok {
		t.Fatal("expected a snapshot after running the pipeline")
	}
	if snap.Sequence != 3 {
		t.Errorf("Sequence = %d, want 3", snap.Sequence)
	}
	if !snap.Detection.Found {
		t.Error("expected the table in the last frame")
	}

	// A finished pipeline can be started again.
	if err := a.Start(); err != nil {
		t.Fatalf("Start() after the source ran out error = %v", err)
	}
	if !a.Running() {
		t.Error("Running() should be true after restarting")
	}

	a.Stop()
	if a.Running() {
		t.Error("Running() should be false after Stop")
	}
	if cam.IsOpen() {
		t.Error("camera should be closed after Stop")
	}

	// Stop is idempotent.
	a.Stop()
}

func TestStartStop_Disabled(t *testing.T) {
	frame := testutil.BlankFrame(64, 48)
	defer frame.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{frame}, true)
	a := newTestApp(t, Config{Camera: cam})

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	a.Stop()

	if _, ok := a.Latest(); ok {
		t.Error("disabled pipeline should not process frames")
	}
}
