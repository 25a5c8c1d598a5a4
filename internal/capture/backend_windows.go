//go:build windows

package capture

/*
#cgo LDFLAGS: -ld3d11 -ldxgi -lole32

#include <windows.h>
#include <d3d11.h>
#include <dxgi1_2.h>
#include <stdlib.h>

typedef struct {
    void* data;
    int width;
    int height;
    int bytesPerRow;
    int error;
} CaptureResult;

static ID3D11Device* g_device = NULL;
static ID3D11DeviceContext* g_context = NULL;
static IDXGIOutputDuplication* g_duplication = NULL;
static int g_initialized = 0;
static int g_screenWidth = 0;
static int g_screenHeight = 0;

int dxgiInit(int displayIndex) {
    if (g_initialized) {
        return 0;
    }

    HRESULT hr;
    D3D_FEATURE_LEVEL featureLevels[] = { D3D_FEATURE_LEVEL_11_0 };
    D3D_FEATURE_LEVEL featureLevel;

    hr = D3D11CreateDevice(NULL, D3D_DRIVER_TYPE_HARDWARE, NULL, 0,
        featureLevels, 1, D3D11_SDK_VERSION, &g_device, &featureLevel, &g_context);
    if (FAILED(hr)) {
        return 1;
    }

    IDXGIDevice* dxgiDevice = NULL;
    hr = g_device->lpVtbl->QueryInterface(g_device, &IID_IDXGIDevice, (void**)&dxgiDevice);
    if (FAILED(hr)) {
        g_device->lpVtbl->Release(g_device);
        g_device = NULL;
        return 2;
    }

    IDXGIAdapter* adapter = NULL;
    hr = dxgiDevice->lpVtbl->GetAdapter(dxgiDevice, &adapter);
    dxgiDevice->lpVtbl->Release(dxgiDevice);
    if (FAILED(hr)) {
        g_device->lpVtbl->Release(g_device);
        g_device = NULL;
        return 3;
    }

    IDXGIOutput* output = NULL;
    hr = adapter->lpVtbl->EnumOutputs(adapter, displayIndex, &output);
    adapter->lpVtbl->Release(adapter);
    if (FAILED(hr)) {
        g_device->lpVtbl->Release(g_device);
        g_device = NULL;
        return 4;
    }

    IDXGIOutput1* output1 = NULL;
    hr = output->lpVtbl->QueryInterface(output, &IID_IDXGIOutput1, (void**)&output1);

    DXGI_OUTPUT_DESC desc;
    output->lpVtbl->GetDesc(output, &desc);
    g_screenWidth = desc.DesktopCoordinates.right - desc.DesktopCoordinates.left;
    g_screenHeight = desc.DesktopCoordinates.bottom - desc.DesktopCoordinates.top;
    output->lpVtbl->Release(output);
    if (FAILED(hr)) {
        g_device->lpVtbl->Release(g_device);
        g_device = NULL;
        return 5;
    }

    hr = output1->lpVtbl->DuplicateOutput(output1, (IUnknown*)g_device, &g_duplication);
    output1->lpVtbl->Release(output1);
    if (FAILED(hr)) {
        g_device->lpVtbl->Release(g_device);
        g_device = NULL;
        return 6;
    }

    g_initialized = 1;
    return 0;
}

void dxgiClose(void) {
    if (g_duplication) { g_duplication->lpVtbl->Release(g_duplication); g_duplication = NULL; }
    if (g_context) { g_context->lpVtbl->Release(g_context); g_context = NULL; }
    if (g_device) { g_device->lpVtbl->Release(g_device); g_device = NULL; }
    g_initialized = 0;
}

CaptureResult dxgiCapture(void) {
    CaptureResult result = {0};
    if (!g_initialized) {
        result.error = 100;
        return result;
    }

    IDXGIResource* desktopResource = NULL;
    DXGI_OUTDUPL_FRAME_INFO frameInfo;
    HRESULT hr = g_duplication->lpVtbl->AcquireNextFrame(g_duplication, 500, &frameInfo, &desktopResource);
    if (FAILED(hr)) {
        result.error = 7;
        return result;
    }

    ID3D11Texture2D* desktopTexture = NULL;
    hr = desktopResource->lpVtbl->QueryInterface(desktopResource, &IID_ID3D11Texture2D, (void**)&desktopTexture);
    desktopResource->lpVtbl->Release(desktopResource);
    if (FAILED(hr)) {
        g_duplication->lpVtbl->ReleaseFrame(g_duplication);
        result.error = 8;
        return result;
    }

    D3D11_TEXTURE2D_DESC desc;
    desktopTexture->lpVtbl->GetDesc(desktopTexture, &desc);

    D3D11_TEXTURE2D_DESC stagingDesc = desc;
    stagingDesc.Usage = D3D11_USAGE_STAGING;
    stagingDesc.BindFlags = 0;
    stagingDesc.CPUAccessFlags = D3D11_CPU_ACCESS_READ;
    stagingDesc.MiscFlags = 0;

    ID3D11Texture2D* stagingTexture = NULL;
    hr = g_device->lpVtbl->CreateTexture2D(g_device, &stagingDesc, NULL, &stagingTexture);
    if (FAILED(hr)) {
        desktopTexture->lpVtbl->Release(desktopTexture);
        g_duplication->lpVtbl->ReleaseFrame(g_duplication);
        result.error = 9;
        return result;
    }

    g_context->lpVtbl->CopyResource(g_context, (ID3D11Resource*)stagingTexture, (ID3D11Resource*)desktopTexture);
    desktopTexture->lpVtbl->Release(desktopTexture);

    result.width = desc.Width;
    result.height = desc.Height;
    result.bytesPerRow = desc.Width * 4;

    D3D11_MAPPED_SUBRESOURCE mapped;
    hr = g_context->lpVtbl->Map(g_context, (ID3D11Resource*)stagingTexture, 0, D3D11_MAP_READ, 0, &mapped);
    if (FAILED(hr)) {
        stagingTexture->lpVtbl->Release(stagingTexture);
        g_duplication->lpVtbl->ReleaseFrame(g_duplication);
        result.error = 10;
        return result;
    }

    size_t dataSize = (size_t)result.bytesPerRow * result.height;
    result.data = malloc(dataSize);
    if (result.data == NULL) {
        g_context->lpVtbl->Unmap(g_context, (ID3D11Resource*)stagingTexture, 0);
        stagingTexture->lpVtbl->Release(stagingTexture);
        g_duplication->lpVtbl->ReleaseFrame(g_duplication);
        result.error = 11;
        return result;
    }

    // DXGI desktop duplication already yields BGRA; copy rows as-is, no
    // channel reordering needed.
    unsigned char* src = (unsigned char*)mapped.pData;
    unsigned char* dst = (unsigned char*)result.data;
    for (int y = 0; y < result.height; y++) {
        memcpy(dst + y * result.bytesPerRow, src + y * mapped.RowPitch, result.bytesPerRow);
    }

    g_context->lpVtbl->Unmap(g_context, (ID3D11Resource*)stagingTexture, 0);
    stagingTexture->lpVtbl->Release(stagingTexture);
    g_duplication->lpVtbl->ReleaseFrame(g_duplication);

    return result;
}

void dxgiFree(void* data) {
    if (data != NULL) free(data);
}
*/
import "C"

import (
	"fmt"
	"time"

	"github.com/nearcast/nearcast/internal/errs"
)

type windowsBackend struct {
	opened bool
}

func newBackend() (backend, error) {
	return &windowsBackend{}, nil
}

// ListDisplays reports a single entry for the index DXGI initializes
// against; full multi-adapter enumeration happens inside dxgiInit's
// EnumOutputs call when Open selects a non-zero index.
func (w *windowsBackend) ListDisplays() ([]Display, error) {
	if code := C.dxgiInit(0); code != 0 {
		return nil, translateDXGIErr(int(code))
	}
	return []Display{{
		ID:      0,
		Name:    "Display 0",
		Width:   int(C.g_screenWidth),
		Height:  int(C.g_screenHeight),
		Primary: true,
	}}, nil
}

func (w *windowsBackend) Open(displayID uint32) error {
	if w.opened {
		C.dxgiClose()
	}
	if code := C.dxgiInit(C.int(displayID)); code != 0 {
		return translateDXGIErr(int(code))
	}
	w.opened = true
	return nil
}

func (w *windowsBackend) CaptureFrame() (CapturedFrame, error) {
	result := C.dxgiCapture()
	if result.error != 0 {
		return CapturedFrame{}, translateDXGIErr(int(result.error))
	}
	defer C.dxgiFree(result.data)

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

func (w *windowsBackend) Close() error {
	if w.opened {
		C.dxgiClose()
		w.opened = false
	}
	return nil
}

func translateDXGIErr(code int) error {
	switch code {
	case 4:
		return errs.NotReady(fmt.Sprintf("capture: %v", errs.ErrDisplayNotFound))
	case 6:
		return errs.PermissionDenied("capture: duplication access denied")
	case 100:
		return errs.NotReady("capture: backend not initialized")
	default:
		return fmt.Errorf("dxgi error code %d", code)
	}
}
