//go:build cgo

package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"unsafe"
)

// result converts a bridge result into a C string, recording any error.
// Returns nil on failure.
func result(s string, err error) *C.char {
	core.setLastError(err)
	if err != nil {
		return nil
	}
	return C.CString(s)
}

//export Init
// Init opens the purchase log using the YAML config at configPath.
// Returns 0 on success, non-zero on error.
func Init(configPath *C.char) int32 {
	err := core.init(C.GoString(configPath))
	core.setLastError(err)
	if err != nil {
		return 1
	}
	return 0
}

//export Cleanup
// Cleanup cleans up resources.
func Cleanup() {
	core.close()
}

//export GetLastError
// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
func GetLastError() *C.char {
	return C.CString(core.lastError())
}

// =====================================================
// Purchase Operations
// =====================================================

//export PurchaseAdd
// PurchaseAdd records a purchase from a JSON object.
// Returns JSON string that must be freed by the caller.
func PurchaseAdd(body *C.char) *C.char {
	return result(core.addPurchase(C.GoString(body)))
}

//export PurchaseList
// PurchaseList lists every purchase.
// Returns JSON object that must be freed by the caller.
func PurchaseList() *C.char {
	return result(core.listPurchases())
}

//export PurchaseDelete
// PurchaseDelete deletes a purchase.
// Returns 0 on success, non-zero on error.
func PurchaseDelete(id *C.char) int32 {
	err := core.deletePurchase(C.GoString(id))
	core.setLastError(err)
	if err != nil {
		return 1
	}
	return 0
}

//export SetActiveGroup
// SetActiveGroup sets the group applied to new purchases. An empty label
// ends grouping.
func SetActiveGroup(label *C.char) *C.char {
	return result(core.setActiveGroup(C.GoString(label)))
}

// =====================================================
// Export Operations
// =====================================================

//export ExportArchive
// ExportArchive runs an export job. Blocks until the archive is ready, so
// call it off the UI thread.
// Returns JSON string that must be freed by the caller.
func ExportArchive() *C.char {
	return result(core.exportArchive())
}

//export ExportStatus
// ExportStatus returns the latest export job event.
func ExportStatus() *C.char {
	return result(core.exportStatus())
}

//export ClearCache
// ClearCache removes export working files and archives.
func ClearCache() *C.char {
	return result(core.clearCache())
}

//export WipeAll
// WipeAll deletes every purchase and app photo.
func WipeAll() *C.char {
	return result(core.wipeAll())
}

// =====================================================
// Memory Management Helpers
// =====================================================

//export FreeString
// FreeString frees a string allocated by Go.
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}
