package main

import (
	"fmt"

	"github.com/book-expert/sovits-service/internal/audio"
)

const (
	kilobyte = 1024
	megabyte = kilobyte * 1024

	secondsInMinute = 60
)

// describeAudio summarizes a WAV payload as "<size>, <duration>". The duration is
// omitted when the payload does not decode.
func describeAudio(wavData []byte) string {
	size := formatFileSize(int64(len(wavData)))

	samples, sampleRate, err := audio.Decode(wavData)
	if err != nil || sampleRate == 0 {
		return size
	}

	return fmt.Sprintf("%s, %s", size, formatDuration(float64(len(samples))/float64(sampleRate)))
}

// formatDuration renders seconds as "45.2s" or "5m 30.5s".
func formatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf("%.1fs", seconds)
	}

	minutes := int(seconds / secondsInMinute)

	return fmt.Sprintf("%dm %.1fs", minutes, seconds-float64(minutes*secondsInMinute))
}

func formatFileSize(bytes int64) string {
	switch {
	case bytes >= megabyte:
		return fmt.Sprintf("%.1f MB", float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
