//go:build darwin

package ax

/*
#cgo CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation

#include <ApplicationServices/ApplicationServices.h>
#include <CoreFoundation/CoreFoundation.h>

static int axElementAt(float x, float y, CFStringRef *role, CFStringRef *name, CFStringRef *value) {
	AXUIElementRef systemWide = AXUIElementCreateSystemWide();
	if (systemWide == NULL) {
		return 0;
	}
	AXUIElementRef el = NULL;
	AXError err = AXUIElementCopyElementAtPosition(systemWide, x, y, &el);
	CFRelease(systemWide);
	if (err != kAXErrorSuccess || el == NULL) {
		return 0;
	}
	AXUIElementCopyAttributeValue(el, kAXRoleAttribute, (CFTypeRef *)role);
	AXUIElementCopyAttributeValue(el, kAXTitleAttribute, (CFTypeRef *)name);
	if (*name == NULL) {
		AXUIElementCopyAttributeValue(el, kAXDescriptionAttribute, (CFTypeRef *)name);
	}
	CFTypeRef raw = NULL;
	AXUIElementCopyAttributeValue(el, kAXValueAttribute, &raw);
	if (raw != NULL) {
		if (CFGetTypeID(raw) == CFStringGetTypeID()) {
			*value = (CFStringRef)raw;
		} else {
			CFRelease(raw);
		}
	}
	CFRelease(el);
	return 1;
}
*/
import "C"

import "unsafe"

var elementAt = darwinElementAt

func darwinElementAt(x, y int32) (Element, bool) {
	var role, name, value C.CFStringRef
	if C.axElementAt(C.float(x), C.float(y), &role, &name, &value) == 0 {
		return Element{}, false
	}
	return Element{
		Role:  cfString(role),
		Name:  cfString(name),
		Value: cfString(value),
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
