//go:build darwin

package focus

/*
#cgo CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo LDFLAGS: -framework Cocoa -framework ApplicationServices

#include <Cocoa/Cocoa.h>
#include <ApplicationServices/ApplicationServices.h>

static int mimicFrontmost(CFStringRef *name, int32_t *pid, CFStringRef *title) {
	NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
	if (app == nil) {
		return 0;
	}
	*pid = (int32_t)app.processIdentifier;
	NSString *localized = app.localizedName ?: @"";
	*name = (__bridge_retained CFStringRef)localized;

	AXUIElementRef axApp = AXUIElementCreateApplication(app.processIdentifier);
	if (axApp != NULL) {
		AXUIElementRef window = NULL;
		if (AXUIElementCopyAttributeValue(axApp, kAXFocusedWindowAttribute, (CFTypeRef *)&window) == kAXErrorSuccess && window != NULL) {
			AXUIElementCopyAttributeValue(window, kAXTitleAttribute, (CFTypeRef *)title);
			CFRelease(window);
		}
		CFRelease(axApp);
	}
	return 1;
}
*/
import "C"

import "unsafe"

var frontmost = darwinFrontmost

func darwinFrontmost() (Snapshot, bool) {
	var name, title C.CFStringRef
	var pid C.int32_t
	if C.mimicFrontmost(&name, &pid, &title) == 0 {
		return Snapshot{}, false
	}
	return Snapshot{
		Name:  cfString(name),
		PID:   int32(pid),
		Title: cfString(title),
	}, true
}

func cfString(s C.CFStringRef) string {
	if s == 0 {
		return ""
	}
	defer C.CFRelease(C.CFTypeRef(s))
	length := C.CFStringGetLength(s)
	if length == 0 {
		return ""
	}
	bufSize := C.CFIndex(1 + 4*length)
	buf := make([]byte, int(bufSize))
	if C.CFStringGetCString(s, (*C.char)(unsafe.Pointer(&buf[0])), bufSize, C.kCFStringEncodingUTF8) == C.Boolean(0) {
		return ""
	}
	return C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
}
