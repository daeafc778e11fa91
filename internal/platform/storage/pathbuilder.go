package storage

import (
	"fmt"
	"strings"
)

// RenderPath is the deterministic object name for a rendered crop, so a
// redelivered job overwrites its own output.
func RenderPath(designID, jobID string, width, height int) (string, error) {
	design, err := validateSegment("designID", designID)
	if err != nil {
		return "", err
	}
	job, err := validateSegment("jobID", jobID)
	if err != nil {
		return "", err
	}
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("storage: render size %dx%d is invalid", width, height)
	}
	return fmt.Sprintf("designs/%s/renders/%s/%dx%d.jpg", design, job, width, height), nil
}

// ValidateObjectName rejects names that escape their prefix.
func ValidateObjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("storage: object name is required")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("storage: object name %q contains invalid path characters", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("storage: object name %q contains an invalid segment", name)
		}
	}
	return name, nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") || strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	return value, nil
}
