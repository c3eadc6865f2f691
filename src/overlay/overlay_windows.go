//go:build windows

package overlay

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"

	"screen-ocr-assist/src/screenshot"
)

const (
	keyPollTimerID    = 1
	keyPollIntervalMs = 25
	mkLButton         = 0x0001
)

var (
	user32DLL                    = syscall.NewLazyDLL("user32.dll")
	procAllowSetForegroundWindow = user32DLL.NewProc("AllowSetForegroundWindow")
	procGetAsyncKeyState         = user32DLL.NewProc("GetAsyncKeyState")

	gdi32DLL      = syscall.NewLazyDLL("gdi32.dll")
	procCreatePen = gdi32DLL.NewProc("CreatePen")
	procRectangle = gdi32DLL.NewProc("Rectangle")

	wndProcCallback = syscall.NewCallback(overlayWndProc)

	// The window procedure has no user data, so the live surface is global.
	// The selector guarantees at most one surface at a time.
	activeMu      sync.Mutex
	activeSurface *windowSurface
)

// NewDriver returns the platform selection driver: a topmost window covering
// the primary display, painted with a snapshot of the screen.
func NewDriver(src *screenshot.Source) Driver {
	return &windowDriver{src: src}
}

type windowDriver struct {
	src *screenshot.Source
}

func (d *windowDriver) Open(ctx context.Context) (Surface, error) {
	primary, err := d.src.PrimaryBounds()
	if err != nil {
		return nil, err
	}
	frame, err := d.src.CaptureFull(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}

	s := &windowSurface{
		events: make(chan Event, 256),
		frame:  frame,
		origin: primary.Min,
		bounds: image.Rect(0, 0, primary.Dx(), primary.Dy()),
		ready:  make(chan error, 1),
	}
	go s.run()
	if err := <-s.ready; err != nil {
		return nil, err
	}
	return s, nil
}

type windowSurface struct {
	events chan Event
	frame  *image.RGBA
	origin image.Point
	bounds image.Rectangle
	ready  chan error

	mu        sync.Mutex
	hwnd      win.HWND
	highlight image.Rectangle
	escDown   bool
	once      sync.Once
}

func (s *windowSurface) Events() <-chan Event    { return s.events }
func (s *windowSurface) Bounds() image.Rectangle { return s.bounds }

func (s *windowSurface) Highlight(r image.Rectangle) {
	s.mu.Lock()
	s.highlight = r
	hwnd := s.hwnd
	s.mu.Unlock()
	if hwnd != 0 {
		win.InvalidateRect(hwnd, nil, false)
	}
}

func (s *windowSurface) Destroy() {
	s.once.Do(func() {
		s.mu.Lock()
		hwnd := s.hwnd
		s.mu.Unlock()
		if hwnd != 0 {
			win.PostMessage(hwnd, win.WM_CLOSE, 0, 0)
		}
	})
}

// run owns the window for its whole life; Win32 windows are bound to the
// thread that created them.
func (s *windowSurface) run() {
	runtime.LockOSThread()
	defer close(s.events)

	className := syscall.StringToUTF16Ptr(fmt.Sprintf("RegionOverlay_%d", time.Now().UnixNano()))
	wndClass := win.WNDCLASSEX{
		CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
		Style:         win.CS_HREDRAW | win.CS_VREDRAW,
		LpfnWndProc:   wndProcCallback,
		HInstance:     win.GetModuleHandle(nil),
		HCursor:       win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS)),
		LpszClassName: className,
	}
	if atom := win.RegisterClassEx(&wndClass); atom == 0 {
		s.ready <- fmt.Errorf("failed to register window class")
		return
	}
	defer win.UnregisterClass(className)

	activeMu.Lock()
	activeSurface = s
	activeMu.Unlock()
	defer func() {
		activeMu.Lock()
		if activeSurface == s {
			activeSurface = nil
		}
		activeMu.Unlock()
	}()

	hwnd := win.CreateWindowEx(
		win.WS_EX_TOPMOST,
		className,
		syscall.StringToUTF16Ptr("Select Region - drag to select, ESC cancels"),
		win.WS_POPUP|win.WS_VISIBLE,
		int32(s.origin.X), int32(s.origin.Y), int32(s.bounds.Dx()), int32(s.bounds.Dy()),
		0, 0, win.GetModuleHandle(nil), nil,
	)
	if hwnd == 0 {
		s.ready <- fmt.Errorf("failed to create overlay window")
		return
	}
	s.mu.Lock()
	s.hwnd = hwnd
	s.mu.Unlock()
	log.Printf("Selector: overlay window created at %v size %dx%d", s.origin, s.bounds.Dx(), s.bounds.Dy())

	win.ShowWindow(hwnd, win.SW_SHOW)
	procAllowSetForegroundWindow.Call(uintptr(os.Getpid()))
	win.SetForegroundWindow(hwnd)
	win.BringWindowToTop(hwnd)
	win.SetFocus(hwnd)
	win.UpdateWindow(hwnd)
	if win.SetTimer(hwnd, keyPollTimerID, keyPollIntervalMs, 0) == 0 {
		log.Printf("Selector: failed to start keyboard poll timer")
	}
	s.ready <- nil

	var msg win.MSG
	for {
		ret := win.GetMessage(&msg, 0, 0, 0)
		if ret == 0 || ret == -1 {
			break
		}
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}
	log.Printf("Selector: overlay window closed")
}

// emit forwards an event without blocking the window thread. Moves are
// dropped when the buffer is full; commits and cancels wait briefly.
func (s *windowSurface) emit(ev Event) {
	if ev.Kind == PointerMove {
		select {
		case s.events <- ev:
		default:
		}
		return
	}
	select {
	case s.events <- ev:
	case <-time.After(time.Second):
		log.Printf("Selector: dropped %s event", ev.Kind)
	}
}

func currentSurface() *windowSurface {
	activeMu.Lock()
	defer activeMu.Unlock()
	return activeSurface
}

func lParamPoint(lParam uintptr) (int, int) {
	return int(int16(win.LOWORD(uint32(lParam)))), int(int16(win.HIWORD(uint32(lParam))))
}

func overlayWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	s := currentSurface()
	if s == nil {
		return win.DefWindowProc(hwnd, msg, wParam, lParam)
	}

	switch msg {
	case win.WM_LBUTTONDOWN:
		win.SetCapture(hwnd)
		x, y := lParamPoint(lParam)
		s.emit(Event{Kind: PointerDown, X: x, Y: y})
		return 0

	case win.WM_MOUSEMOVE:
		if wParam&mkLButton != 0 {
			x, y := lParamPoint(lParam)
			s.emit(Event{Kind: PointerMove, X: x, Y: y})
		}
		return 0

	case win.WM_LBUTTONUP:
		win.ReleaseCapture()
		x, y := lParamPoint(lParam)
		s.emit(Event{Kind: PointerUp, X: x, Y: y})
		return 0

	case win.WM_RBUTTONDOWN:
		s.emit(Event{Kind: Cancel})
		return 0

	case win.WM_KEYDOWN:
		if wParam == win.VK_ESCAPE {
			s.escDown = true
			s.emit(Event{Kind: Cancel})
		}
		return 0

	case win.WM_KEYUP:
		if wParam == win.VK_ESCAPE {
			s.escDown = false
		}
		return 0

	case win.WM_TIMER:
		// The overlay does not always get keyboard focus, so Esc is also polled.
		if wParam == keyPollTimerID {
			down, pressed := asyncKeyState(win.VK_ESCAPE)
			if !s.escDown && (down || pressed) {
				s.emit(Event{Kind: Cancel})
			}
			s.escDown = down
		}
		return 0

	case win.WM_PAINT:
		var ps win.PAINTSTRUCT
		hdc := win.BeginPaint(hwnd, &ps)
		s.paint(hdc)
		win.EndPaint(hwnd, &ps)
		return 0

	case win.WM_SETCURSOR:
		win.SetCursor(win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS)))
		return 1

	case win.WM_NCHITTEST:
		return uintptr(win.HTCLIENT)

	case win.WM_DESTROY:
		win.KillTimer(hwnd, keyPollTimerID)
		// Each surface runs on its own thread, so quitting its loop is safe.
		win.PostQuitMessage(0)
		return 0
	}

	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

func asyncKeyState(vk int32) (bool, bool) {
	state, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	v := uint16(state)
	return v&0x8000 != 0, v&0x0001 != 0
}

func (s *windowSurface) paint(hdc win.HDC) {
	drawFrame(hdc, s.frame)

	hint := "Drag to select a region   ESC cancel"
	win.SetBkMode(hdc, win.TRANSPARENT)
	win.SetTextColor(hdc, win.COLORREF(0x00FFFF))
	win.TextOut(hdc, 16, 16, syscall.StringToUTF16Ptr(hint), int32(len(hint)))

	s.mu.Lock()
	r := s.highlight
	s.mu.Unlock()
	if !r.Empty() {
		drawRectangle(hdc, r)
	}
}

// drawFrame blits the RGBA snapshot through a top-down 32bpp DIB section.
func drawFrame(hdc win.HDC, frame *image.RGBA) {
	if frame == nil {
		return
	}
	memDC := win.CreateCompatibleDC(hdc)
	defer win.DeleteDC(memDC)

	width := frame.Bounds().Dx()
	height := frame.Bounds().Dy()
	info := win.BITMAPINFO{
		BmiHeader: win.BITMAPINFOHEADER{
			BiSize:        uint32(unsafe.Sizeof(win.BITMAPINFOHEADER{})),
			BiWidth:       int32(width),
			BiHeight:      -int32(height),
			BiPlanes:      1,
			BiBitCount:    32,
			BiCompression: win.BI_RGB,
		},
	}

	var bits unsafe.Pointer
	hBitmap := win.CreateDIBSection(memDC, &info.BmiHeader, win.DIB_RGB_COLORS, &bits, 0, 0)
	if hBitmap == 0 {
		return
	}
	defer win.DeleteObject(win.HGDIOBJ(hBitmap))
	old := win.SelectObject(memDC, win.HGDIOBJ(hBitmap))
	defer win.SelectObject(memDC, old)

	dst := unsafe.Slice((*byte)(bits), width*height*4)
	for y := 0; y < height; y++ {
		row := frame.Pix[y*frame.Stride : y*frame.Stride+width*4]
		out := dst[y*width*4 : (y+1)*width*4]
		for x := 0; x < width*4; x += 4 {
			out[x] = row[x+2]
			out[x+1] = row[x+1]
			out[x+2] = row[x]
			out[x+3] = row[x+3]
		}
	}

	win.BitBlt(hdc, 0, 0, int32(width), int32(height), memDC, 0, 0, win.SRCCOPY)
}

func drawRectangle(hdc win.HDC, r image.Rectangle) {
	pen, _, _ := procCreatePen.Call(0, 3, 0x0000FF)
	oldPen := win.SelectObject(hdc, win.HGDIOBJ(pen))
	oldBrush := win.SelectObject(hdc, win.GetStockObject(win.NULL_BRUSH))
	procRectangle.Call(uintptr(hdc), uintptr(r.Min.X), uintptr(r.Min.Y), uintptr(r.Max.X), uintptr(r.Max.Y))
	win.SelectObject(hdc, oldPen)
	win.SelectObject(hdc, oldBrush)
	win.DeleteObject(win.HGDIOBJ(pen))
}
