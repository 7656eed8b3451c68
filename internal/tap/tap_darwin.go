//go:build darwin

package tap

/*
#cgo CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo LDFLAGS: -framework CoreGraphics -framework ApplicationServices -framework Carbon

#include <ApplicationServices/ApplicationServices.h>
#include <Carbon/Carbon.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

extern CGEventRef goTapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *userInfo);

static CFRunLoopSourceRef mimicStartTap(uintptr_t handle, CGEventMask mask, CFMachPortRef *tapOut) {
	CFMachPortRef tap = CGEventTapCreate(kCGSessionEventTap,
	                                     kCGHeadInsertEventTap,
	                                     kCGEventTapOptionListenOnly,
	                                     mask,
	                                     goTapCallback,
	                                     (void *)handle);
	if (tap == NULL) {
		return NULL;
	}
	CGEventTapEnable(tap, true);
	CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
	*tapOut = tap;
	return source;
}

static CGEventMask mimicMaskBit(CGEventType type) {
	return ((CGEventMask)1) << type;
}

static void mimicAddSource(CFRunLoopRef loop, CFRunLoopSourceRef source) {
	CFRunLoopAddSource(loop, source, kCFRunLoopCommonModes);
}

static double mimicEventX(CGEventRef event) {
	return CGEventGetLocation(event).x;
}

static double mimicEventY(CGEventRef event) {
	return CGEventGetLocation(event).y;
}

static int64_t mimicEventField(CGEventRef event, CGEventField field) {
	return CGEventGetIntegerValueField(event, field);
}

static uint64_t mimicEventFlags(CGEventRef event) {
	return (uint64_t)CGEventGetFlags(event);
}

// Layout data is resolved once when the tap starts; UCKeyTranslate in
// the callback is then a pure in-process table lookup.
static const UCKeyboardLayout *mimicLayout = NULL;

static void mimicLoadLayout(void) {
	TISInputSourceRef source = TISCopyCurrentKeyboardLayoutInputSource();
	if (source == NULL) {
		return;
	}
	CFDataRef data = (CFDataRef)TISGetInputSourceProperty(source, kTISPropertyUnicodeKeyLayoutData);
	if (data != NULL) {
		mimicLayout = (const UCKeyboardLayout *)CFDataGetBytePtr(data);
		CFRetain(data);
	}
	CFRelease(source);
}

static int mimicTranslateKey(uint16_t keycode, uint32_t carbonMods, UniChar *buf, int bufLen) {
	if (mimicLayout == NULL) {
		return 0;
	}
	UInt32 deadKeys = 0;
	UniCharCount out = 0;
	OSStatus status = UCKeyTranslate(mimicLayout,
	                                 keycode,
	                                 kUCKeyActionDown,
	                                 (carbonMods >> 8) & 0xFF,
	                                 LMGetKbdType(),
	                                 kUCKeyTranslateNoDeadKeysBit,
	                                 &deadKeys,
	                                 bufLen,
	                                 &out,
	                                 buf);
	if (status != noErr) {
		return 0;
	}
	return (int)out;
}
*/
import "C"

import (
	"context"
	"fmt"
	"runtime"
	"runtime/cgo"
	"sync"
	"unicode/utf16"
	"unsafe"

	"github.com/ehrlich-b/mimic/internal/event"
)

func modsFromFlags(flags uint64) event.Mod {
	var m event.Mod
	if flags&uint64(C.kCGEventFlagMaskShift) != 0 {
		m |= event.ModShift
	}
	if flags&uint64(C.kCGEventFlagMaskControl) != 0 {
		m |= event.ModControl
	}
	if flags&uint64(C.kCGEventFlagMaskAlternate) != 0 {
		m |= event.ModOption
	}
	if flags&uint64(C.kCGEventFlagMaskCommand) != 0 {
		m |= event.ModCommand
	}
	if flags&uint64(C.kCGEventFlagMaskAlphaShift) != 0 {
		m |= event.ModCaps
	}
	if flags&uint64(C.kCGEventFlagMaskSecondaryFn) != 0 {
		m |= event.ModFn
	}
	return m
}

// translate maps a keycode to the characters the current layout
// produces for it, honoring shift and caps only (other modifiers mean
// the press is a shortcut, not text).
func translate(code uint16, mods event.Mod) string {
	var carbon C.uint32_t
	if mods&event.ModShift != 0 {
		carbon |= C.uint32_t(C.shiftKey)
	}
	if mods&event.ModCaps != 0 {
		carbon |= C.uint32_t(C.alphaLock)
	}
	var buf [4]C.UniChar
	n := C.mimicTranslateKey(C.uint16_t(code), carbon, &buf[0], C.int(len(buf)))
	if n <= 0 {
		return ""
	}
	units := make([]uint16, int(n))
	for i := range units {
		units[i] = uint16(buf[i])
	}
	return string(utf16.Decode(units))
}

func (t *Tap) start(ctx context.Context) error {
	ready := make(chan error, 1)
	done := make(chan struct{})
	var loop C.CFRunLoopRef
	loopReady := make(chan struct{})

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)

		handle := cgo.NewHandle(t)
		defer handle.Delete()

		C.mimicLoadLayout()

		mask := C.mimicMaskBit(C.kCGEventLeftMouseDown) |
			C.mimicMaskBit(C.kCGEventLeftMouseUp) |
			C.mimicMaskBit(C.kCGEventRightMouseDown) |
			C.mimicMaskBit(C.kCGEventRightMouseUp) |
			C.mimicMaskBit(C.kCGEventOtherMouseDown) |
			C.mimicMaskBit(C.kCGEventOtherMouseUp) |
			C.mimicMaskBit(C.kCGEventMouseMoved) |
			C.mimicMaskBit(C.kCGEventLeftMouseDragged) |
			C.mimicMaskBit(C.kCGEventRightMouseDragged) |
			C.mimicMaskBit(C.kCGEventOtherMouseDragged) |
			C.mimicMaskBit(C.kCGEventScrollWheel) |
			C.mimicMaskBit(C.kCGEventKeyDown) |
			C.mimicMaskBit(C.kCGEventFlagsChanged)

		var machPort C.CFMachPortRef
		source := C.mimicStartTap(C.uintptr_t(handle), mask, &machPort)
		if source == 0 {
			ready <- fmt.Errorf("%w (check input-monitoring permission)", ErrTapCreate)
			return
		}
		defer C.CFRelease(C.CFTypeRef(source))
		defer C.CFRelease(C.CFTypeRef(machPort))

		loop = C.CFRunLoopGetCurrent()
		close(loopReady)
		C.mimicAddSource(loop, source)
		ready <- nil
		C.CFRunLoopRun()
	}()

	if err := <-ready; err != nil {
		return err
	}
	<-loopReady

	var once sync.Once
	t.stop = func() {
		once.Do(func() {
			C.CFRunLoopStop(loop)
			<-done
			close(t.ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			t.Stop()
		case <-done:
		}
	}()
	return nil
}

//export goTapCallback
func goTapCallback(_ C.CGEventTapProxy, eventType C.CGEventType, ev C.CGEventRef, userInfo unsafe.Pointer) C.CGEventRef {
	t, ok := cgo.Handle(uintptr(userInfo)).Value().(*Tap)
	if !ok {
		return ev
	}

	now := t.clk.Now()
	mods := modsFromFlags(uint64(C.mimicEventFlags(ev)))

	switch eventType {
	case C.kCGEventLeftMouseUp, C.kCGEventRightMouseUp, C.kCGEventOtherMouseUp:
		button := event.ButtonLeft
		switch eventType {
		case C.kCGEventRightMouseUp:
			button = event.ButtonRight
		case C.kCGEventOtherMouseUp:
			button = event.ButtonMiddle
		}
		clicks := uint8(C.mimicEventField(ev, C.kCGMouseEventClickState))
		if clicks == 0 {
			clicks = 1
		}
		t.send(Message{
			T:      now,
			Kind:   MouseUp,
			X:      int32(C.mimicEventX(ev)),
			Y:      int32(C.mimicEventY(ev)),
			Button: button,
			Clicks: clicks,
			Mods:   mods,
		})
	case C.kCGEventMouseMoved, C.kCGEventLeftMouseDragged, C.kCGEventRightMouseDragged, C.kCGEventOtherMouseDragged:
		t.send(Message{
			T:    now,
			Kind: MouseMove,
			X:    int32(C.mimicEventX(ev)),
			Y:    int32(C.mimicEventY(ev)),
		})
	case C.kCGEventScrollWheel:
		t.send(Message{
			T:    now,
			Kind: Wheel,
			X:    int32(C.mimicEventX(ev)),
			Y:    int32(C.mimicEventY(ev)),
			DX:   int32(C.mimicEventField(ev, C.kCGScrollWheelEventDeltaAxis2)),
			DY:   int32(C.mimicEventField(ev, C.kCGScrollWheelEventDeltaAxis1)),
		})
	case C.kCGEventKeyDown:
		code := uint16(C.mimicEventField(ev, C.kCGKeyboardEventKeycode))
		t.send(Message{
			T:     now,
			Kind:  KeyDown,
			Code:  code,
			Chars: translate(code, mods),
			Mods:  mods,
		})
	case C.kCGEventFlagsChanged:
		t.send(Message{T: now, Kind: FlagsChanged, Mods: mods})
	}
	return ev
}
