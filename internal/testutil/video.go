// Package testutil builds synthetic media for tests.
package testutil

import (
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

// WriteVideo encodes frames solid-colour BGR frames of width x height into an MJPEG AVI in a
// temporary directory and returns its path. fill picks the colour of frame i.
// The test is skipped when the local OpenCV build cannot write MJPEG.
func WriteVideo(t *testing.T, frames, width, height int, fill func(i int) gocv.Scalar) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "synthetic.avi")
	writer, err := gocv.VideoWriterFile(path, "MJPG", 30, width, height, true)
	if err != nil {
		t.Skipf("cannot create video writer: %v", err)
	}
	if !writer.IsOpened() {
		writer.Close()
		t.Skip("MJPG video writer not available in this OpenCV build")
	}

	for i := 0; i < frames; i++ {
		color := gocv.NewScalar(0, 0, 0, 0)
		if fill != nil {
			color = fill(i)
		}
		frame := gocv.NewMatWithSizeFromScalar(color, height, width, gocv.MatTypeCV8UC3)
		err := writer.Write(frame)
		frame.Close()
		if err != nil {
			writer.Close()
			t.Fatalf("write frame %d: %v", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close video writer: %v", err)
	}
	return path
}

// Blank returns a solid black frame fill.
func Blank(int) gocv.Scalar {
	return gocv.NewScalar(0, 0, 0, 0)
}
