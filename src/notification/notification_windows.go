//go:build windows

package notification

import (
	"log"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	mbOK              = 0x00000000
	mbIconError       = 0x00000010
	mbIconInformation = 0x00000040
	mbSystemModal     = 0x00001000
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procMessageBoxW = user32.NewProc("MessageBoxW")
)

// ShowBlockingError displays a modal, blocking error dialog and returns after user dismisses it.
func ShowBlockingError(title, message string) {
	messageBox(title, message, mbOK|mbIconError|mbSystemModal)
}

// ShowInfo displays a blocking information dialog.
func ShowInfo(title, message string) {
	messageBox(title, message, mbOK|mbIconInformation)
}

func messageBox(title, message string, flags uintptr) {
	titlePtr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		log.Printf("notification: bad title: %v", err)
		return
	}
	msgPtr, err := windows.UTF16PtrFromString(clip(message))
	if err != nil {
		log.Printf("notification: bad message: %v", err)
		return
	}
	procMessageBoxW.Call(0, uintptr(unsafe.Pointer(msgPtr)), uintptr(unsafe.Pointer(titlePtr)), flags)
}
