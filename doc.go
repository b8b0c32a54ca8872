// Package svckit turns an ordinary Go function into a long-running
// background service with a uniform lifecycle: install, uninstall, start,
// stop, restart, status and foreground run.
//
// On fork-capable POSIX hosts the library daemonizes the process itself
// (double detach, PID record, /etc/init.d control script). On Windows the
// service control manager owns the process and the library supplies the
// callback runner, status reporting and cooperative stop signaling. Callers
// see the same Controller either way.
//
// A callback receives a Handle and is expected to watch it, either by
// polling StopRequested or by selecting on Done, and to return promptly
// once a stop is requested. Nothing ever kills the callback from inside
// the process.
//
//	ctl, err := svckit.New(svckit.Descriptor{
//		Name:      "worker",
//		AutoStart: true,
//		Callback: func(h *svckit.Handle) error {
//			for !h.StopRequested() {
//				// one unit of work
//			}
//			return nil
//		},
//	}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	err = ctl.Start()
package svckit
