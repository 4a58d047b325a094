package a3interface

/*
#include <stdlib.h>

typedef int (*extensionCallback)(char const *name, char const *function, char const *data);

// https://golang.org/cmd/cgo/#hdr-C_references_to_Go
static inline int runExtensionCallback(extensionCallback fnc, char const *name, char const *function, char const *data)
{
	return fnc(name, function, data);
}
*/
import "C"

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"
)

var extensionCallbackFnc C.extensionCallback

//export RVExtensionRegisterCallback
func RVExtensionRegisterCallback(fnc C.extensionCallback) {
	extensionCallbackFnc = fnc
}

// WriteArmaCallback sends an asynchronous message to the host via the
// registered extension callback. Quietly a no-op until the host registers
// its callback pointer.
func WriteArmaCallback(name string, function string, data ...string) {
	if extensionCallbackFnc == nil {
		return
	}

	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	cFunction := C.CString(function)
	defer C.free(unsafe.Pointer(cFunction))
	cData := C.CString(strings.Join(data, "|"))
	defer C.free(unsafe.Pointer(cData))

	C.runExtensionCallback(extensionCallbackFnc, cName, cFunction, cData)
}

// GetArmaDir returns the host executable directory. It will not account for symlinks.
func GetArmaDir() (string, error) {
	executablePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("getting executable directory: %w", err)
	}
	return filepath.Dir(executablePath), nil
}
