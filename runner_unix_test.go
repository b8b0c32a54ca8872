//go:build !windows
// +build !windows

package svckit

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"svckit/internal/daemonize"
	"svckit/internal/pidfile"
	"svckit/internal/terminate"
)

func newTestController(t *testing.T, desc Descriptor, adjust func(*Config)) (*Controller, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	cfg := &Config{
		ScriptDir:             t.TempDir(),
		PIDDir:                t.TempDir(),
		DisablePrivilegeCheck: true,
		Out:                   out,
		Termination:           terminate.Policy{Interval: 20 * time.Millisecond},
	}
	if adjust != nil {
		adjust(cfg)
	}
	if desc.Callback == nil {
		desc.Callback = nopCallback
	}
	c, err := New(desc, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, out
}

func stubDetach(t *testing.T, fn func() (daemonize.Stage, error)) {
	t.Helper()
	prev := detachPipeline
	detachPipeline = fn
	t.Cleanup(func() { detachPipeline = prev })
}

func stubRespawn(t *testing.T, fn func() error) {
	t.Helper()
	prev := respawnSelf
	respawnSelf = fn
	t.Cleanup(func() { respawnSelf = prev })
}

func TestInstallCreatesControlScript(t *testing.T) {
	installed := false
	c, out := newTestController(t, Descriptor{
		Name:  "worker",
		Hooks: Hooks{OnInstalled: func() { installed = true }},
	}, nil)

	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	info, err := os.Stat(filepath.Join(c.cfg.ScriptDir, "worker"))
	if err != nil {
		t.Fatalf("control script missing: %v", err)
	}
	if info.Mode()&0111 == 0 {
		t.Error("control script is not executable")
	}
	if !installed {
		t.Error("OnInstalled hook did not fire")
	}
	if !c.IsInstalled() {
		t.Error("IsInstalled should report true after install")
	}
	if !strings.Contains(out.String(), "* Installing worker") {
		t.Errorf("announcement missing, got %q", out.String())
	}
}

func TestInstallTwice(t *testing.T) {
	c, _ := newTestController(t, Descriptor{Name: "worker"}, nil)
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := c.Install(); !errors.Is(err, ErrAlreadyInstalled) {
		t.Errorf("second Install = %v, want ErrAlreadyInstalled", err)
	}
}

func TestInstallRequiresPrivilege(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("privilege check cannot fail as root")
	}
	c, _ := newTestController(t, Descriptor{Name: "worker"}, func(cfg *Config) {
		cfg.DisablePrivilegeCheck = false
	})
	if err := c.Install(); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Install = %v, want ErrPermissionDenied", err)
	}
}

func TestUninstallNotInstalled(t *testing.T) {
	c, _ := newTestController(t, Descriptor{Name: "worker"}, nil)
	if err := c.Uninstall(); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Uninstall = %v, want ErrNotInstalled", err)
	}
}

func TestUninstallRemovesScript(t *testing.T) {
	uninstalled := false
	c, _ := newTestController(t, Descriptor{
		Name:  "worker",
		Hooks: Hooks{OnUninstalled: func() { uninstalled = true }},
	}, nil)

	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := c.Uninstall(); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if _, err := os.Stat(filepath.Join(c.cfg.ScriptDir, "worker")); !os.IsNotExist(err) {
		t.Error("control script should be gone after uninstall")
	}
	if !uninstalled {
		t.Error("OnUninstalled hook did not fire")
	}
	if st, _ := c.Status(); st != StatusNotInstalled {
		t.Errorf("Status = %v, want %v", st, StatusNotInstalled)
	}
}

func TestStartNotInstalled(t *testing.T) {
	c, _ := newTestController(t, Descriptor{Name: "worker"}, nil)
	if err := c.Start(); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Start = %v, want ErrNotInstalled", err)
	}
	if c.IsRunning() {
		t.Error("a refused start must not leave a liveness record")
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	c, _ := newTestController(t, Descriptor{Name: "worker"}, nil)
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := pidfile.New(c.cfg.PIDDir, "worker").Write(os.Getpid()); err != nil {
		t.Fatalf("seeding pid record: %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestStartLauncherHandsOff(t *testing.T) {
	stubDetach(t, func() (daemonize.Stage, error) { return daemonize.StageLauncher, nil })

	c, out := newTestController(t, Descriptor{Name: "worker"}, nil)
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The liveness record belongs to the detached process, not the launcher.
	if c.IsRunning() {
		t.Error("launcher must not write the liveness record")
	}
	if !strings.Contains(out.String(), "* Starting worker") {
		t.Errorf("announcement missing, got %q", out.String())
	}
}

func TestStartDetachFailure(t *testing.T) {
	stubDetach(t, func() (daemonize.Stage, error) {
		return daemonize.StageLauncher, errors.New("spawn refused")
	})

	c, _ := newTestController(t, Descriptor{Name: "worker"}, nil)
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrDetachFailed) {
		t.Errorf("Start = %v, want ErrDetachFailed", err)
	}
	if c.IsRunning() {
		t.Error("a failed start must not leave a liveness record")
	}
}

func TestStartSupervisesCallback(t *testing.T) {
	stubDetach(t, func() (daemonize.Stage, error) { return daemonize.StageDaemon, nil })

	started := false
	sawRecord := false
	var c *Controller
	c, _ = newTestController(t, Descriptor{
		Name: "worker",
		Callback: func(h *Handle) error {
			sawRecord = c.IsRunning()
			return nil
		},
		Hooks: Hooks{OnStarted: func() { started = true }},
	}, nil)

	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !started {
		t.Error("OnStarted hook did not fire")
	}
	if !sawRecord {
		t.Error("liveness record should exist while the callback runs")
	}
	if c.IsRunning() {
		t.Error("record should be cleaned up after the callback returns")
	}
}

func TestCrashRestartsAutoStartService(t *testing.T) {
	stubDetach(t, func() (daemonize.Stage, error) { return daemonize.StageDaemon, nil })
	respawns := 0
	stubRespawn(t, func() error { respawns++; return nil })

	c, _ := newTestController(t, Descriptor{
		Name:      "worker",
		AutoStart: true,
		Callback:  func(h *Handle) error { return errors.New("boom") },
	}, func(cfg *Config) {
		cfg.RestartDelay = time.Millisecond
	})
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}

	err := c.Start()
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Start = %v, want the callback error", err)
	}
	if respawns != 1 {
		t.Errorf("respawns = %d, want 1", respawns)
	}
	if c.IsRunning() {
		t.Error("record should be cleaned up after the crash")
	}
}

func TestCrashWithoutAutoStartStaysDown(t *testing.T) {
	stubDetach(t, func() (daemonize.Stage, error) { return daemonize.StageDaemon, nil })
	respawns := 0
	stubRespawn(t, func() error { respawns++; return nil })

	c, _ := newTestController(t, Descriptor{
		Name:     "worker",
		Callback: func(h *Handle) error { return errors.New("boom") },
	}, nil)
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if err := c.Start(); err == nil {
		t.Error("Start should surface the callback error")
	}
	if respawns != 0 {
		t.Errorf("respawns = %d, want 0 without AutoStart", respawns)
	}
}

func TestStopRequestDoesNotTriggerRestart(t *testing.T) {
	stubDetach(t, func() (daemonize.Stage, error) { return daemonize.StageDaemon, nil })
	respawns := 0
	stubRespawn(t, func() error { respawns++; return nil })

	started := make(chan struct{})
	c, _ := newTestController(t, Descriptor{
		Name:      "worker",
		AutoStart: true,
		Callback: func(h *Handle) error {
			<-h.Done()
			return nil
		},
		Hooks: Hooks{OnStarted: func() { close(started) }},
	}, func(cfg *Config) {
		cfg.RestartDelay = time.Millisecond
	})
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}

	go func() {
		<-started
		// A controlling process deletes the record before signaling, so the
		// exiting daemon reads the absence as "this stop was requested".
		pidfile.New(c.cfg.PIDDir, "worker").Remove()
		syscall.Kill(os.Getpid(), syscall.SIGTERM)
	}()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if respawns != 0 {
		t.Errorf("respawns = %d, want 0 after a requested stop", respawns)
	}
}

func TestExternalKillTriggersRestart(t *testing.T) {
	stubDetach(t, func() (daemonize.Stage, error) { return daemonize.StageDaemon, nil })
	respawns := 0
	stubRespawn(t, func() error { respawns++; return nil })

	started := make(chan struct{})
	c, _ := newTestController(t, Descriptor{
		Name:      "worker",
		AutoStart: true,
		Callback: func(h *Handle) error {
			<-h.Done()
			return nil
		},
		Hooks: Hooks{OnStarted: func() { close(started) }},
	}, func(cfg *Config) {
		cfg.RestartDelay = time.Millisecond
	})
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}

	// A bare signal leaves the record in place, which is indistinguishable
	// from a crash and must relaunch an AutoStart service.
	go func() {
		<-started
		syscall.Kill(os.Getpid(), syscall.SIGTERM)
	}()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if respawns != 1 {
		t.Errorf("respawns = %d, want 1 after an unrequested exit", respawns)
	}
	if c.IsRunning() {
		t.Error("record should be cleaned up on the way out")
	}
}

func TestStopNotRunning(t *testing.T) {
	c, _ := newTestController(t, Descriptor{Name: "worker"}, nil)
	if err := c.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop = %v, want ErrNotRunning", err)
	}
}

func TestStopStaleRecord(t *testing.T) {
	stopped := false
	c, out := newTestController(t, Descriptor{
		Name:  "worker",
		Hooks: Hooks{OnStopped: func() { stopped = true }},
	}, nil)
	store := pidfile.New(c.cfg.PIDDir, "worker")
	if err := store.Write(99999999); err != nil {
		t.Fatalf("seeding pid record: %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if store.Exists() {
		t.Error("stale record should be gone")
	}
	if !stopped {
		t.Error("OnStopped hook did not fire")
	}
	if !strings.Contains(out.String(), "* Stopping worker") {
		t.Errorf("announcement missing, got %q", out.String())
	}
}

func TestStopCorruptRecord(t *testing.T) {
	c, _ := newTestController(t, Descriptor{Name: "worker"}, nil)
	path := filepath.Join(c.cfg.PIDDir, "worker.pid")
	if err := os.WriteFile(path, []byte("gibberish\n"), 0644); err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	if err := c.Stop(); !errors.Is(err, ErrCorruptPIDRecord) {
		t.Errorf("Stop = %v, want ErrCorruptPIDRecord", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt record should be discarded so the service is startable")
	}
}

func TestStopTerminatesProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting child: %v", err)
	}
	waitCh := make(chan struct{})
	go func() { cmd.Wait(); close(waitCh) }()

	c, _ := newTestController(t, Descriptor{Name: "worker"}, nil)
	if err := pidfile.New(c.cfg.PIDDir, "worker").Write(cmd.Process.Pid); err != nil {
		t.Fatalf("seeding pid record: %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-waitCh:
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		t.Fatal("child survived the stop")
	}
	if c.IsRunning() {
		t.Error("record should be gone after the stop")
	}
}

func TestUninstallStopsRunningService(t *testing.T) {
	var order []string
	c, out := newTestController(t, Descriptor{
		Name: "worker",
		Hooks: Hooks{
			OnStopped:     func() { order = append(order, "stopped") },
			OnUninstalled: func() { order = append(order, "uninstalled") },
		},
	}, nil)
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := pidfile.New(c.cfg.PIDDir, "worker").Write(99999999); err != nil {
		t.Fatalf("seeding pid record: %v", err)
	}

	if err := c.Uninstall(); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if len(order) != 2 || order[0] != "stopped" || order[1] != "uninstalled" {
		t.Errorf("hook order = %v, want [stopped uninstalled]", order)
	}
	if c.IsInstalled() || c.IsRunning() {
		t.Error("script and record should both be gone")
	}
	text := out.String()
	if !strings.Contains(text, "* Stopping worker") || !strings.Contains(text, "* Uninstalling worker") {
		t.Fatalf("announcements missing, got %q", text)
	}
	if strings.Index(text, "* Stopping worker") > strings.Index(text, "* Uninstalling worker") {
		t.Errorf("stop should be announced before uninstall, got %q", text)
	}
}

func TestUninstallAbortsWhenStopFails(t *testing.T) {
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting child: %v", err)
	}
	waitCh := make(chan struct{})
	go func() { cmd.Wait(); close(waitCh) }()
	defer func() {
		cmd.Process.Kill()
		<-waitCh
	}()
	// Give the shell a moment to install its trap.
	time.Sleep(100 * time.Millisecond)

	c, _ := newTestController(t, Descriptor{Name: "worker"}, func(cfg *Config) {
		cfg.Termination = terminate.Policy{MaxAttempts: 2, Interval: 10 * time.Millisecond}
	})
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := pidfile.New(c.cfg.PIDDir, "worker").Write(cmd.Process.Pid); err != nil {
		t.Fatalf("seeding pid record: %v", err)
	}

	if err := c.Uninstall(); !errors.Is(err, ErrStopTimeout) {
		t.Errorf("Uninstall = %v, want ErrStopTimeout", err)
	}
	if !c.IsInstalled() {
		t.Error("a failed stop must leave the registration in place")
	}
}

func TestRestartWhenStopped(t *testing.T) {
	stubDetach(t, func() (daemonize.Stage, error) { return daemonize.StageLauncher, nil })

	c, out := newTestController(t, Descriptor{Name: "worker"}, nil)
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := c.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if !strings.Contains(out.String(), "* Starting worker") {
		t.Errorf("restart of a stopped service should still start it, got %q", out.String())
	}
}

func TestRestartStopsThenStarts(t *testing.T) {
	stubDetach(t, func() (daemonize.Stage, error) { return daemonize.StageLauncher, nil })

	c, out := newTestController(t, Descriptor{Name: "worker"}, nil)
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := pidfile.New(c.cfg.PIDDir, "worker").Write(99999999); err != nil {
		t.Fatalf("seeding pid record: %v", err)
	}

	if err := c.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "* Stopping worker") || !strings.Contains(text, "* Starting worker") {
		t.Fatalf("announcements missing, got %q", text)
	}
	if strings.Index(text, "* Stopping worker") > strings.Index(text, "* Starting worker") {
		t.Errorf("restart should stop before starting, got %q", text)
	}
}

func TestStatusTracksState(t *testing.T) {
	c, _ := newTestController(t, Descriptor{Name: "worker"}, nil)
	store := pidfile.New(c.cfg.PIDDir, "worker")

	if st, _ := c.Status(); st != StatusNotInstalled {
		t.Errorf("fresh Status = %v, want %v", st, StatusNotInstalled)
	}
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if st, _ := c.Status(); st != StatusStopped {
		t.Errorf("installed Status = %v, want %v", st, StatusStopped)
	}
	if err := store.Write(os.Getpid()); err != nil {
		t.Fatalf("seeding pid record: %v", err)
	}
	if st, _ := c.Status(); st != StatusRunning {
		t.Errorf("running Status = %v, want %v", st, StatusRunning)
	}
	store.Remove()
	if st, _ := c.Status(); st != StatusStopped {
		t.Errorf("stopped Status = %v, want %v", st, StatusStopped)
	}
}

func TestRunForeground(t *testing.T) {
	var order []string
	ran := false
	c, _ := newTestController(t, Descriptor{
		Name: "worker",
		Callback: func(h *Handle) error {
			ran = true
			return nil
		},
		Hooks: Hooks{
			OnStarted: func() { order = append(order, "started") },
			OnStopped: func() { order = append(order, "stopped") },
		},
	}, nil)

	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ran {
		t.Error("callback did not run")
	}
	if len(order) != 2 || order[0] != "started" || order[1] != "stopped" {
		t.Errorf("hook order = %v, want [started stopped]", order)
	}
	if c.IsRunning() {
		t.Error("foreground run must not write a liveness record")
	}
}

func TestRunForegroundPropagatesError(t *testing.T) {
	c, _ := newTestController(t, Descriptor{
		Name:     "worker",
		Callback: func(h *Handle) error { return errors.New("bad exit") },
	}, nil)

	if err := c.Run(); err == nil || !strings.Contains(err.Error(), "bad exit") {
		t.Errorf("Run = %v, want the callback error", err)
	}
}
