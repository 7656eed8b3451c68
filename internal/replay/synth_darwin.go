//go:build darwin

package replay

/*
#cgo CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo LDFLAGS: -framework CoreGraphics -framework Carbon -framework Cocoa

#include <stdlib.h>
#include <ApplicationServices/ApplicationServices.h>
#include <Carbon/Carbon.h>
#include <Cocoa/Cocoa.h>

static void mimicPostMouse(CGEventType type, double x, double y, CGMouseButton button, int clicks) {
	CGEventRef ev = CGEventCreateMouseEvent(NULL, type, CGPointMake(x, y), button);
	if (ev == NULL) {
		return;
	}
	if (clicks > 0) {
		CGEventSetIntegerValueField(ev, kCGMouseEventClickState, clicks);
	}
	CGEventPost(kCGHIDEventTap, ev);
	CFRelease(ev);
}

static void mimicPostMouseFlags(CGEventType type, double x, double y, CGMouseButton button, int clicks, uint64_t flags) {
	CGEventRef ev = CGEventCreateMouseEvent(NULL, type, CGPointMake(x, y), button);
	if (ev == NULL) {
		return;
	}
	if (clicks > 0) {
		CGEventSetIntegerValueField(ev, kCGMouseEventClickState, clicks);
	}
	CGEventSetFlags(ev, (CGEventFlags)flags);
	CGEventPost(kCGHIDEventTap, ev);
	CFRelease(ev);
}

static void mimicPostScroll(double x, double y, int dx, int dy) {
	CGEventRef move = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved, CGPointMake(x, y), kCGMouseButtonLeft);
	if (move != NULL) {
		CGEventPost(kCGHIDEventTap, move);
		CFRelease(move);
	}
	CGEventRef ev = CGEventCreateScrollWheelEvent(NULL, kCGScrollEventUnitLine, 2, dy, dx);
	if (ev == NULL) {
		return;
	}
	CGEventPost(kCGHIDEventTap, ev);
	CFRelease(ev);
}

static void mimicPostKey(uint16_t keycode, uint64_t flags, int down) {
	CGEventRef ev = CGEventCreateKeyboardEvent(NULL, (CGKeyCode)keycode, down ? true : false);
	if (ev == NULL) {
		return;
	}
	CGEventSetFlags(ev, (CGEventFlags)flags);
	CGEventPost(kCGHIDEventTap, ev);
	CFRelease(ev);
}

static const UCKeyboardLayout *mimicSynthLayout = NULL;

static void mimicSynthLoadLayout(void) {
	TISInputSourceRef source = TISCopyCurrentKeyboardLayoutInputSource();
	if (source == NULL) {
		return;
	}
	CFDataRef data = (CFDataRef)TISGetInputSourceProperty(source, kTISPropertyUnicodeKeyLayoutData);
	if (data != NULL) {
		mimicSynthLayout = (const UCKeyboardLayout *)CFDataGetBytePtr(data);
		CFRetain(data);
	}
	CFRelease(source);
}

static int mimicSynthTranslate(uint16_t keycode, int shift, UniChar *buf, int bufLen) {
	if (mimicSynthLayout == NULL) {
		return 0;
	}
	UInt32 deadKeys = 0;
	UniCharCount out = 0;
	UInt32 mods = shift ? ((shiftKey >> 8) & 0xFF) : 0;
	OSStatus status = UCKeyTranslate(mimicSynthLayout, keycode, kUCKeyActionDown, mods,
	                                 LMGetKbdType(), kUCKeyTranslateNoDeadKeysBit,
	                                 &deadKeys, bufLen, &out, buf);
	if (status != noErr) {
		return 0;
	}
	return (int)out;
}

static CFStringRef mimicPasteboardRead(void) {
	NSString *s = [[NSPasteboard generalPasteboard] stringForType:NSPasteboardTypeString];
	if (s == nil) {
		return NULL;
	}
	return (__bridge_retained CFStringRef)s;
}

static void mimicPasteboardWrite(const char *utf8) {
	NSPasteboard *pb = [NSPasteboard generalPasteboard];
	[pb clearContents];
	[pb setString:[NSString stringWithUTF8String:utf8] forType:NSPasteboardTypeString];
}
*/
import "C"

import (
	"time"
	"unsafe"

	"github.com/ehrlich-b/mimic/internal/event"
)

const (
	// kVK_ANSI_V, for the paste chord fallback.
	keycodeV = 9
	// keyTapDelay spaces the synthetic down/up pairs so receivers see
	// distinct events.
	keyTapDelay = 2 * time.Millisecond
)

type keystroke struct {
	code  uint16
	shift bool
}

// darwinSynthesizer posts CGEvents. The reverse keymap is built once
// from the current layout by translating every hardware keycode with
// and without shift.
type darwinSynthesizer struct {
	keymap       map[rune]keystroke
	noPasteboard bool
}

// NewSynthesizer returns the platform synthesizer. With noPasteboard
// set, text scalars the layout cannot produce are skipped instead of
// pasted (the clipboard is never touched).
func NewSynthesizer(noPasteboard bool) (Synthesizer, error) {
	C.mimicSynthLoadLayout()
	s := &darwinSynthesizer{
		keymap:       make(map[rune]keystroke),
		noPasteboard: noPasteboard,
	}
	var buf [4]C.UniChar
	for code := 0; code < 128; code++ {
		for _, shift := range []bool{false, true} {
			cShift := C.int(0)
			if shift {
				cShift = 1
			}
			n := C.mimicSynthTranslate(C.uint16_t(code), cShift, &buf[0], C.int(len(buf)))
			if n != 1 {
				continue
			}
			r := rune(uint16(buf[0]))
			if _, seen := s.keymap[r]; !seen {
				s.keymap[r] = keystroke{code: uint16(code), shift: shift}
			}
		}
	}
	return s, nil
}

func cgFlags(mods event.Mod) uint64 {
	var f uint64
	if mods&event.ModShift != 0 {
		f |= uint64(C.kCGEventFlagMaskShift)
	}
	if mods&event.ModControl != 0 {
		f |= uint64(C.kCGEventFlagMaskControl)
	}
	if mods&event.ModOption != 0 {
		f |= uint64(C.kCGEventFlagMaskAlternate)
	}
	if mods&event.ModCommand != 0 {
		f |= uint64(C.kCGEventFlagMaskCommand)
	}
	if mods&event.ModCaps != 0 {
		f |= uint64(C.kCGEventFlagMaskAlphaShift)
	}
	if mods&event.ModFn != 0 {
		f |= uint64(C.kCGEventFlagMaskSecondaryFn)
	}
	return f
}

func (s *darwinSynthesizer) Warp(x, y int32) error {
	C.mimicPostMouse(C.kCGEventMouseMoved, C.double(x), C.double(y), C.kCGMouseButtonLeft, 0)
	return nil
}

func (s *darwinSynthesizer) Click(x, y int32, button event.Button, clicks uint8, mods event.Mod) error {
	var down, up C.CGEventType
	var cgButton C.CGMouseButton
	switch button {
	case event.ButtonRight:
		down, up, cgButton = C.kCGEventRightMouseDown, C.kCGEventRightMouseUp, C.kCGMouseButtonRight
	case event.ButtonMiddle:
		down, up, cgButton = C.kCGEventOtherMouseDown, C.kCGEventOtherMouseUp, C.kCGMouseButtonCenter
	default:
		down, up, cgButton = C.kCGEventLeftMouseDown, C.kCGEventLeftMouseUp, C.kCGMouseButtonLeft
	}
	flags := C.uint64_t(cgFlags(mods))
	C.mimicPostMouseFlags(down, C.double(x), C.double(y), cgButton, C.int(clicks), flags)
	C.mimicPostMouseFlags(up, C.double(x), C.double(y), cgButton, C.int(clicks), flags)
	return nil
}

func (s *darwinSynthesizer) Scroll(x, y, dx, dy int32) error {
	C.mimicPostScroll(C.double(x), C.double(y), C.int(dx), C.int(dy))
	return nil
}

func (s *darwinSynthesizer) Key(code uint16, mods event.Mod) error {
	flags := C.uint64_t(cgFlags(mods))
	C.mimicPostKey(C.uint16_t(code), flags, 1)
	time.Sleep(keyTapDelay)
	C.mimicPostKey(C.uint16_t(code), flags, 0)
	return nil
}

// Text types each scalar through the layout. The first scalar the
// layout cannot produce switches the remainder to the pasteboard path:
// save, set, cmd+V, restore.
func (s *darwinSynthesizer) Text(text string) error {
	runes := []rune(text)
	for i, r := range runes {
		ks, ok := s.keymap[r]
		if !ok {
			rest := string(runes[i:])
			if s.noPasteboard {
				continue
			}
			return s.paste(rest)
		}
		var mods event.Mod
		if ks.shift {
			mods = event.ModShift
		}
		if err := s.Key(ks.code, mods); err != nil {
			return err
		}
	}
	return nil
}

func (s *darwinSynthesizer) paste(text string) error {
	saved, hadSaved := readPasteboard()
	writePasteboard(text)
	err := s.Key(keycodeV, event.ModCommand)
	// Give the frontmost app a beat to consume the paste before the
	// original contents come back.
	time.Sleep(50 * time.Millisecond)
	if hadSaved {
		writePasteboard(saved)
	}
	return err
}

func readPasteboard() (string, bool) {
	ref := C.mimicPasteboardRead()
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

func writePasteboard(text string) {
	cs := C.CString(text)
	defer C.free(unsafe.Pointer(cs))
	C.mimicPasteboardWrite(cs)
}
