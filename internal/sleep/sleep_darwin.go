//go:build darwin && cgo

package sleep

/*
#cgo LDFLAGS: -framework IOKit -framework CoreFoundation

#include <IOKit/pwr_mgt/IOPMLib.h>
#include <IOKit/IOMessage.h>
#include <CoreFoundation/CoreFoundation.h>

// Private API from IOPMLibPrivate.h: false during dark wake (Power Nap).
extern Boolean IOPMUserIsActive(void);

extern void goPowerEvent(int event);

static io_connect_t rootPort;
static IONotificationPortRef notifyPortRef;
static io_object_t notifierObject;

// Events passed to Go: 1 = sleep, 2 = wake.
static void powerCallback(void *refCon, io_service_t service, natural_t messageType, void *messageArgument) {
	switch (messageType) {
	case kIOMessageCanSystemSleep:
		IOAllowPowerChange(rootPort, (long)messageArgument);
		break;
	case kIOMessageSystemWillSleep:
		goPowerEvent(1);
		IOAllowPowerChange(rootPort, (long)messageArgument);
		break;
	case kIOMessageSystemHasPoweredOn:
		goPowerEvent(2);
		break;
	}
}

static int registerPowerCallbacks(void) {
	rootPort = IORegisterForSystemPower(NULL, &notifyPortRef, powerCallback, &notifierObject);
	if (rootPort == 0) {
		return -1;
	}
	CFRunLoopAddSource(CFRunLoopGetCurrent(), IONotificationPortGetRunLoopSource(notifyPortRef), kCFRunLoopDefaultMode);
	return 0;
}

static void deregisterPowerCallbacks(void) {
	CFRunLoopRemoveSource(CFRunLoopGetCurrent(), IONotificationPortGetRunLoopSource(notifyPortRef), kCFRunLoopDefaultMode);
	IODeregisterForSystemPower(&notifierObject);
	IOServiceClose(rootPort);
	IONotificationPortDestroy(notifyPortRef);
}

static void runRunLoop(void) {
	CFRunLoopRun();
}

static void stopRunLoop(CFRunLoopRef rl) {
	CFRunLoopStop(rl);
}

static int userIsActive(void) {
	return IOPMUserIsActive() ? 1 : 0;
}
*/
import "C"

import (
	"context"
	"runtime"
	"sync"
)

// IOKit callbacks carry no Go state, so the running monitor is global.
var (
	activeMonitor   *Monitor
	activeMonitorMu sync.Mutex
)

//export goPowerEvent
func goPowerEvent(event C.int) {
	activeMonitorMu.Lock()
	m := activeMonitor
	activeMonitorMu.Unlock()

	if m == nil {
		return
	}

	switch event {
	case 1:
		m.markSleep()
	case 2:
		m.markWake()
	}
}

// Start registers for IOKit system power notifications until ctx is done.
// Polling is also held off during dark wake.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.userActive = func() bool { return C.userIsActive() != 0 }
	m.mu.Unlock()

	activeMonitorMu.Lock()
	activeMonitor = m
	activeMonitorMu.Unlock()

	go func() {
		// The run loop belongs to this thread.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if ret := C.registerPowerCallbacks(); ret != 0 {
			m.logger.Error("Failed to register for system power notifications")
			return
		}

		rl := C.CFRunLoopGetCurrent()
		go func() {
			<-ctx.Done()
			C.stopRunLoop(rl)
		}()

		C.runRunLoop()
		C.deregisterPowerCallbacks()

		activeMonitorMu.Lock()
		activeMonitor = nil
		activeMonitorMu.Unlock()

		m.logger.Debug("Sleep monitor stopped")
	}()

	m.logger.Info("Sleep monitor started (IOKit)")
}
