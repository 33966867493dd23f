package utils

import (
	"fmt"
	"strings"

	"github.com/braunma/netbox-fabric-generator/internal/constants"
)

// Slugify converts a string to a URL-safe slug
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	// Remove any characters that aren't alphanumeric or hyphens
	var result strings.Builder
	for _, char := range s {
		if (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9') || char == '-' {
			result.WriteRune(char)
		}
	}
	return result.String()
}

// GetIDFromObject extracts an ID from various inventory object formats
func GetIDFromObject(obj interface{}) int {
	if obj == nil {
		return 0
	}

	switch v := obj.(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		var id int
		if _, err := fmt.Sscanf(v, "%d", &id); err == nil {
			return id
		}
		return 0
	case map[string]interface{}:
		if id, ok := v["id"].(int); ok {
			return id
		}
		if id, ok := v["id"].(float64); ok {
			return int(id)
		}
		if id, ok := v["id"].(string); ok {
			var parsedID int
			if _, err := fmt.Sscanf(id, "%d", &parsedID); err == nil {
				return parsedID
			}
		}
	}

	return 0
}

// GetStringField extracts a string field from an inventory object
func GetStringField(obj map[string]interface{}, key string) string {
	if obj == nil {
		return ""
	}
	if s, ok := obj[key].(string); ok {
		return s
	}
	return ""
}

// FabricPort formats a 1-based switch port name (swp1, swp2, ...)
func FabricPort(n int) string {
	return fmt.Sprintf("%s%d", constants.FabricPortPrefix, n)
}

// Contains checks if a string slice contains a specific string
func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
