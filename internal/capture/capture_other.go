//go:build !linux && !darwin && !windows

package capture

import "hearme/internal/herr"

func ListSources() ([]Source, error) {
	return nil, herr.New(herr.Unsupported, "list sources", nil)
}

func NewCapturer(sourceID string) (Capturer, error) {
	return nil, herr.New(herr.Unsupported, "capture", nil)
}
