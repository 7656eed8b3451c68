//go:build darwin

package clip

/*
#cgo CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo LDFLAGS: -framework Cocoa

#include <Cocoa/Cocoa.h>

static long mimicChangeCount(void) {
	return (long)[[NSPasteboard generalPasteboard] changeCount];
}

static CFStringRef mimicReadString(void) {
	NSString *s = [[NSPasteboard generalPasteboard] stringForType:NSPasteboardTypeString];
	if (s == nil) {
		return NULL;
	}
	return (__bridge_retained CFStringRef)s;
}
*/
import "C"

import "unsafe"

type darwinPasteboard struct{}

func newPasteboard() pasteboard {
	return darwinPasteboard{}
}

func (darwinPasteboard) ChangeCount() int {
	return int(C.mimicChangeCount())
}

func (darwinPasteboard) ReadString() (string, bool) {
	ref := C.mimicReadString()
	if ref == 0 {
		return "", false
	}
	defer C.CFRelease(C.CFTypeRef(ref))
	length := C.CFStringGetLength(ref)
	bufSize := C.CFIndex(1 + 4*length)
	buf := make([]byte, int(bufSize))
	if C.CFStringGetCString(ref, (*C.char)(unsafe.Pointer(&buf[0])), bufSize, C.kCFStringEncodingUTF8) == C.Boolean(0) {
		return "", false
	}
	return C.GoString((*C.char)(unsafe.Pointer(&buf[0]))), true
}
