//go:build darwin

package perm

/*
#cgo CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo LDFLAGS: -framework ApplicationServices -framework CoreGraphics

#include <ApplicationServices/ApplicationServices.h>
#include <CoreGraphics/CoreGraphics.h>

static int mimicAXTrusted(int prompt) {
	if (!prompt) {
		return AXIsProcessTrusted() ? 1 : 0;
	}
	const void *keys[] = { kAXTrustedCheckOptionPrompt };
	const void *values[] = { kCFBooleanTrue };
	CFDictionaryRef options = CFDictionaryCreate(kCFAllocatorDefault, keys, values, 1,
	                                             &kCFTypeDictionaryKeyCallBacks,
	                                             &kCFTypeDictionaryValueCallBacks);
	Boolean trusted = AXIsProcessTrustedWithOptions(options);
	CFRelease(options);
	return trusted ? 1 : 0;
}

static int mimicListenAccess(int prompt) {
	if (prompt) {
		return CGRequestListenEventAccess() ? 1 : 0;
	}
	return CGPreflightListenEventAccess() ? 1 : 0;
}
*/
import "C"

func check() Report {
	return Report{
		Accessibility:   C.mimicAXTrusted(0) == 1,
		InputMonitoring: C.mimicListenAccess(0) == 1,
	}
}

func request() Report {
	return Report{
		Accessibility:   C.mimicAXTrusted(1) == 1,
		InputMonitoring: C.mimicListenAccess(1) == 1,
	}
}
