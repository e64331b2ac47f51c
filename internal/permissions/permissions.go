package permissions

/*
#cgo CFLAGS: -x objective-c -fmodules
#cgo LDFLAGS: -framework AVFoundation

#import <AVFoundation/AVFoundation.h>

int check_microphone_permission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}
*/
import "C"

import (
	"os/exec"
)

// PermissionStatus represents the status of a system permission
type PermissionStatus int

const (
	// PermissionNotDetermined means the user hasn't been asked yet
	PermissionNotDetermined PermissionStatus = 0
	// PermissionRestricted means the permission is restricted by parental controls
	PermissionRestricted PermissionStatus = 1
	// PermissionDenied means the user has explicitly denied the permission
	PermissionDenied PermissionStatus = 2
	// PermissionAuthorized means the user has authorized the permission
	PermissionAuthorized PermissionStatus = 3
)

// PermissionChecker provides methods for checking macOS system permissions
type PermissionChecker struct{}

// NewPermissionChecker creates a new permission checker
func NewPermissionChecker() *PermissionChecker {
	return &PermissionChecker{}
}

// CheckMicrophonePermission checks if the application has microphone access permission
func (pc *PermissionChecker) CheckMicrophonePermission() PermissionStatus {
	status := C.check_microphone_permission()
	return PermissionStatus(status)
}

// IsMicrophoneAuthorized returns whether microphone permission is granted
func (pc *PermissionChecker) IsMicrophoneAuthorized() bool {
	return pc.CheckMicrophonePermission() == PermissionAuthorized
}

// RequestMicrophonePermission opens system settings for microphone permission
func (pc *PermissionChecker) RequestMicrophonePermission() error {
	url := "x-apple.systempreferences:com.apple.preference.security?Privacy_Microphone"
	cmd := exec.Command("open", url)
	return cmd.Run()
}

// PermissionStatus string representation
func (ps PermissionStatus) String() string {
	switch ps {
	case PermissionNotDetermined:
		return "NotDetermined"
	case PermissionRestricted:
		return "Restricted"
	case PermissionDenied:
		return "Denied"
	case PermissionAuthorized:
		return "Authorized"
	default:
		return "Unknown"
	}
}

// GetPermissionStatusMessage returns a human-readable message for a permission status
func GetPermissionStatusMessage(status PermissionStatus) string {
	switch status {
	case PermissionNotDetermined:
		return "Microphone permission not yet determined"
	case PermissionRestricted:
		return "Microphone permission restricted by parental controls"
	case PermissionDenied:
		return "Microphone permission denied"
	case PermissionAuthorized:
		return "Microphone permission authorized"
	default:
		return "Unknown permission status"
	}
}
