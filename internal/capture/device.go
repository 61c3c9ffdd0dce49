package capture

import (
	"fmt"
	"strings"
)

// Device is a browser media device the UI acquires
type Device string

const (
	DeviceCamera     Device = "camera"
	DeviceMicrophone Device = "microphone"
)

// ParseDevice accepts "camera" or "microphone"
func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case DeviceCamera, DeviceMicrophone:
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q", s)
	}
}

// DescribeDeviceError turns the name of a browser media error into a message
// for the user. Speech recognition error codes are understood for the
// microphone.
func DescribeDeviceError(device Device, name string, message string) string {
	noun := string(device)
	if noun == "" {
		noun = string(DeviceCamera)
	}
	title := strings.ToUpper(noun[:1]) + noun[1:]

	switch name {
	case "NotAllowedError", "PermissionDeniedError", "not-allowed", "service-not-allowed":
		return fmt.Sprintf("%s permission was denied. Please enable it in your browser settings.", title)
	case "NotFoundError", "DevicesNotFoundError", "audio-capture":
		return fmt.Sprintf("No %s was found on your device.", noun)
	case "NotReadableError", "TrackStartError":
		return fmt.Sprintf("The %s is already in use or cannot be read (e.g., hardware error).", noun)
	case "AbortError", "aborted":
		return fmt.Sprintf("%s access was aborted. This can happen if the page is closed or another process took over the %s.", title, noun)
	case "OverconstrainedError":
		return fmt.Sprintf("The requested %s settings (e.g., resolution) are not supported by your %s.", noun, noun)
	case "SecurityError":
		return fmt.Sprintf("%s access is blocked by browser security settings (e.g., page not served over HTTPS).", title)
	case "no-speech":
		return "No speech was detected. Please try again."
	case "network":
		return "Speech recognition failed because of a network error."
	case "":
		if message == "" {
			return fmt.Sprintf("Could not access or initialize the %s.", noun)
		}
	}

	if device == DeviceMicrophone && strings.Contains(name, "-") {
		return fmt.Sprintf("Speech recognition error: %s", name)
	}
	return fmt.Sprintf("An unexpected error occurred: %s. Please ensure permissions are granted and the %s is available.", message, noun)
}
