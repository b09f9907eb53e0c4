package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

// Vehicle classes in the COCO label set.
var vehicleClasses = map[int]string{
	2: "car",
	5: "bus",
	7: "truck",
}

const maxReplyBytes = 4 << 20

const replySchema = `{
	"type": "object",
	"required": ["detections"],
	"properties": {
		"detections": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["box", "confidence", "class_id"],
				"properties": {
					"box": {
						"type": "array",
						"items": {"type": "number"},
						"minItems": 4,
						"maxItems": 4
					},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1},
					"class_id": {"type": "integer", "minimum": 0}
				}
			}
		}
	}
}`

type remoteReply struct {
	Detections []struct {
		Box        [4]float64 `json:"box"`
		Confidence float64    `json:"confidence"`
		ClassID    int        `json:"class_id"`
	} `json:"detections"`
}

// Remote sends the image to an inference service over HTTP and annotates the
// reply locally.
type Remote struct {
	url           string
	minConfidence float64
	client        *http.Client
	schema        *jsonschema.Schema
	logger        *zap.Logger
}

// NewRemote creates a detector that posts images to url. Detections below
// minConfidence or outside the vehicle classes are discarded.
func NewRemote(url string, minConfidence float64, client *http.Client, logger *zap.Logger) (*Remote, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("detections.json", strings.NewReader(replySchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("detections.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{
		url:           url,
		minConfidence: minConfidence,
		client:        client,
		schema:        schema,
		logger:        logger,
	}, nil
}

func (r *Remote) Detect(ctx context.Context, imagePath, outputPath string) (*domain.Detection, error) {
	reply, err := r.infer(ctx, imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDetectionFailed, err)
	}

	var (
		boxes []domain.Box
		marks []mark
	)
	for _, d := range reply.Detections {
		class, ok := vehicleClasses[d.ClassID]
		if !ok || d.Confidence < r.minConfidence {
			continue
		}
		box := domain.Box{int(d.Box[0]), int(d.Box[1]), int(d.Box[2]), int(d.Box[3])}
		boxes = append(boxes, box)
		marks = append(marks, mark{box: box, label: fmt.Sprintf("%s %.2f", class, d.Confidence)})
	}

	if err := annotate(imagePath, outputPath, marks); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDetectionFailed, err)
	}

	r.logger.Debug("remote detection complete",
		zap.String("input", imagePath),
		zap.Int("raw", len(reply.Detections)),
		zap.Int("count", len(boxes)),
	)
	return &domain.Detection{Count: len(boxes), Boxes: boxes, AnnotatedPath: outputPath}, nil
}

func (r *Remote) infer(ctx context.Context, imagePath string) (*remoteReply, error) {
	body, contentType, err := multipartImage(imagePath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call detector: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned %d", resp.StatusCode)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if err := r.schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("reply does not match schema: %w", err)
	}

	var reply remoteReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &reply, nil
}

func multipartImage(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
