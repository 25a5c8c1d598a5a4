//go:build darwin

package capture

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation

#include <CoreGraphics/CoreGraphics.h>
#include <stdlib.h>

typedef struct {
    void* data;
    int width;
    int height;
    int bytesPerRow;
    int error;
} CaptureResult;

CaptureResult cgCapture(int displayIndex) {
    CaptureResult result = {0};

    CGDirectDisplayID displays[16];
    uint32_t count = 0;
    CGGetActiveDisplayList(16, displays, &count);
    if (displayIndex < 0 || (uint32_t)displayIndex >= count) {
        result.error = 1; // display not found
        return result;
    }

    CGImageRef image = CGDisplayCreateImage(displays[displayIndex]);
    if (image == NULL) {
        result.error = 2; // permission denied or capture failed
        return result;
    }

    size_t width = CGImageGetWidth(image);
    size_t height = CGImageGetHeight(image);
    size_t bytesPerRow = width * 4;

    void* buf = malloc(bytesPerRow * height);
    if (buf == NULL) {
        CGImageRelease(image);
        result.error = 3;
        return result;
    }

    CGColorSpaceRef colorSpace = CGColorSpaceCreateDeviceRGB();
    // kCGImageAlphaPremultipliedFirst + kCGBitmapByteOrder32Little yields
    // BGRA byte order directly, so no channel-reorder pass is needed.
    CGContextRef ctx = CGBitmapContextCreate(buf, width, height, 8, bytesPerRow,
        colorSpace, kCGImageAlphaPremultipliedFirst | kCGBitmapByteOrder32Little);
    CGColorSpaceRelease(colorSpace);

    if (ctx == NULL) {
        free(buf);
        CGImageRelease(image);
        result.error = 4;
        return result;
    }

    CGContextDrawImage(ctx, CGRectMake(0, 0, width, height), image);
    CGContextRelease(ctx);
    CGImageRelease(image);

    result.data = buf;
    result.width = (int)width;
    result.height = (int)height;
    result.bytesPerRow = (int)bytesPerRow;
    return result;
}

int cgDisplayCount(void) {
    CGDirectDisplayID displays[16];
    uint32_t count = 0;
    CGGetActiveDisplayList(16, displays, &count);
    return (int)count;
}

int cgDisplayBounds(int index, int* width, int* height) {
    CGDirectDisplayID displays[16];
    uint32_t count = 0;
    CGGetActiveDisplayList(16, displays, &count);
    if (index < 0 || (uint32_t)index >= count) {
        return 1;
    }
    CGRect bounds = CGDisplayBounds(displays[index]);
    *width = (int)bounds.size.width;
    *height = (int)bounds.size.height;
    return 0;
}

void cgFree(void* data) {
    if (data != NULL) free(data);
}
*/
import "C"

import (
	"fmt"
	"time"

	"github.com/nearcast/nearcast/internal/errs"
)

type darwinBackend struct {
	displayID uint32
	opened    bool
}

func newBackend() (backend, error) {
	return &darwinBackend{}, nil
}

func (d *darwinBackend) ListDisplays() ([]Display, error) {
	count := int(C.cgDisplayCount())
	if count == 0 {
		return nil, errs.Init("capture: no active displays", nil)
	}
	displays := make([]Display, 0, count)
	for i := 0; i < count; i++ {
		var w, h C.int
		if C.cgDisplayBounds(C.int(i), &w, &h) != 0 {
			continue
		}
		displays = append(displays, Display{
			ID:      uint32(i),
			Name:    fmt.Sprintf("Display %d", i),
			Width:   int(w),
			Height:  int(h),
			Primary: i == 0,
		})
	}
	return displays, nil
}

func (d *darwinBackend) Open(displayID uint32) error {
	d.displayID = displayID
	d.opened = true
	return nil
}

func (d *darwinBackend) CaptureFrame() (CapturedFrame, error) {
	result := C.cgCapture(C.int(d.displayID))
	if result.error != 0 {
		return CapturedFrame{}, translateCGErr(int(result.error))
	}
	defer C.cgFree(result.data)

	width := int(result.width)
	height := int(result.height)
	stride := int(result.bytesPerRow)
	pixels := C.GoBytes(result.data, C.int(stride*height))

	return CapturedFrame{
		Width:       width,
		Height:      height,
		TimestampMs: time.Now().UnixMilli(),
		Pixels:      pixels,
		Format:      FormatBGRA,
	}, nil
}

func (d *darwinBackend) Close() error {
	d.opened = false
	return nil
}

func translateCGErr(code int) error {
	switch code {
	case 1:
		return errs.NotReady(fmt.Sprintf("capture: %v", errs.ErrDisplayNotFound))
	case 2:
		return errs.PermissionDenied("capture: screen recording permission denied")
	default:
		return fmt.Errorf("coregraphics capture error code %d", code)
	}
}
