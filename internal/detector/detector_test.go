package detector

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	path := filepath.Join(dir, "in.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestMock_CopiesInputAndReportsThree(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jpg")
	out := filepath.Join(dir, "out.jpg")
	require.NoError(t, os.WriteFile(in, []byte("image-bytes"), 0o644))

	det, err := NewMock(0, zap.NewNop()).Detect(context.Background(), in, out)
	require.NoError(t, err)
	require.Equal(t, 3, det.Count)
	require.Equal(t, MockBoxes, det.Boxes)
	require.Equal(t, out, det.AnnotatedPath)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "image-bytes", string(data))
}

func TestMock_MissingInputFails(t *testing.T) {
	dir := t.TempDir()
	_, err := NewMock(0, zap.NewNop()).Detect(context.Background(), filepath.Join(dir, "nope.jpg"), filepath.Join(dir, "out.jpg"))
	require.ErrorIs(t, err, domain.ErrDetectionFailed)
}

func TestMock_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMock(time.Hour, zap.NewNop()).Detect(ctx, "in", "out")
	require.ErrorIs(t, err, domain.ErrDetectionFailed)
}

func TestWithTimeout_ZeroIsPassthrough(t *testing.T) {
	inner := NewMock(0, zap.NewNop())
	require.Same(t, inner, WithTimeout(0, inner))
}

func TestWithTimeout_HangBecomesFailure(t *testing.T) {
	hang := Func(func(ctx context.Context, _, _ string) (*domain.Detection, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	start := time.Now()
	_, err := WithTimeout(20*time.Millisecond, hang).Detect(context.Background(), "in", "out")
	require.ErrorIs(t, err, domain.ErrDetectionFailed)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestWithTimeout_PassesResultThrough(t *testing.T) {
	fast := Func(func(context.Context, string, string) (*domain.Detection, error) {
		return &domain.Detection{Count: 7}, nil
	})
	det, err := WithTimeout(time.Second, fast).Detect(context.Background(), "in", "out")
	require.NoError(t, err)
	require.Equal(t, 7, det.Count)
}

func newRemoteServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		_, _ = io.Copy(io.Discard, file)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemote_FiltersAndAnnotates(t *testing.T) {
	srv := newRemoteServer(t, http.StatusOK, `{"detections":[
		{"box":[10,10,50,50],"confidence":0.9,"class_id":2},
		{"box":[60,10,90,40],"confidence":0.5,"class_id":7},
		{"box":[5,60,30,90],"confidence":0.9,"class_id":0},
		{"box":[40,60,80,95],"confidence":0.1,"class_id":5}
	]}`)

	dir := t.TempDir()
	in := writePNG(t, dir, 100, 100)
	out := filepath.Join(dir, "out.png")

	remote, err := NewRemote(srv.URL, 0.25, srv.Client(), zap.NewNop())
	require.NoError(t, err)

	det, err := remote.Detect(context.Background(), in, out)
	require.NoError(t, err)
	require.Equal(t, 2, det.Count)
	require.Equal(t, []domain.Box{{10, 10, 50, 50}, {60, 10, 90, 40}}, det.Boxes)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	r, g, b, _ := img.At(10, 10).RGBA()
	require.Equal(t, [3]uint32{0, 0xffff, 0}, [3]uint32{r, g, b})
	r, g, b, _ = img.At(30, 30).RGBA()
	require.NotEqual(t, uint32(0xffff), g, "box interior must be untouched (rgb %d,%d,%d)", r, g, b)
}

func TestRemote_DrawsLabelAboveBox(t *testing.T) {
	srv := newRemoteServer(t, http.StatusOK, `{"detections":[
		{"box":[10,40,90,90],"confidence":0.87,"class_id":2}
	]}`)

	dir := t.TempDir()
	in := writePNG(t, dir, 100, 100)
	out := filepath.Join(dir, "out.png")

	remote, err := NewRemote(srv.URL, 0.25, srv.Client(), zap.NewNop())
	require.NoError(t, err)
	_, err = remote.Detect(context.Background(), in, out)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	// "car 0.87" occupies rows 30..42 starting at x=10; the box edge starts at row 40.
	green := 0
	for y := 30; y < 40; y++ {
		for x := 10; x < 70; x++ {
			if r, g, b, _ := img.At(x, y).RGBA(); r == 0 && g == 0xffff && b == 0 {
				green++
			}
		}
	}
	require.Positive(t, green, "expected label pixels above the box")

	// Nothing is drawn left of the box in the label rows.
	for y := 30; y < 40; y++ {
		r, g, b, _ := img.At(5, y).RGBA()
		require.NotEqual(t, [3]uint32{0, 0xffff, 0}, [3]uint32{r, g, b})
	}
}

func TestRemote_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"detections":[]}`},
		{"not json", http.StatusOK, `<html>`},
		{"schema mismatch", http.StatusOK, `{"detections":[{"box":[1,2,3],"confidence":0.9,"class_id":2}]}`},
		{"missing detections", http.StatusOK, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRemoteServer(t, tt.status, tt.body)
			dir := t.TempDir()
			in := writePNG(t, dir, 10, 10)

			remote, err := NewRemote(srv.URL, 0.25, srv.Client(), zap.NewNop())
			require.NoError(t, err)

			_, err = remote.Detect(context.Background(), in, filepath.Join(dir, "out.png"))
			require.True(t, errors.Is(err, domain.ErrDetectionFailed), "got %v", err)
		})
	}
}

func TestRemote_UndecodableImage(t *testing.T) {
	srv := newRemoteServer(t, http.StatusOK, `{"detections":[]}`)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jpg")
	require.NoError(t, os.WriteFile(in, []byte("not an image"), 0o644))

	remote, err := NewRemote(srv.URL, 0.25, srv.Client(), zap.NewNop())
	require.NoError(t, err)

	_, err = remote.Detect(context.Background(), in, filepath.Join(dir, "out.jpg"))
	require.ErrorIs(t, err, domain.ErrDetectionFailed)
}
