package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	visionapi "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/lecturelens-backend/internal/platform/gcp"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
)

type gcpCaptioner struct {
	log    *logger.Logger
	client *visionapi.ImageAnnotatorClient
}

// NewGCPCaptioner describes keyframes with Google Cloud Vision: scene labels
// plus any slide text found on the frame.
func NewGCPCaptioner(log *logger.Logger) (Captioner, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := visionapi.NewImageAnnotatorClient(context.Background(), gcp.ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &gcpCaptioner{log: log.With("service", "gcp.Captioner"), client: c}, nil
}

func (c *gcpCaptioner) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *gcpCaptioner) Caption(ctx context.Context, img []byte) (string, error) {
	if len(img) == 0 {
		return "", fmt.Errorf("empty image")
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: img},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 6},
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := c.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", fmt.Errorf("empty vision response")
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("vision annotate: %s", r0.Error.Message)
	}

	return composeCaption(r0), nil
}

// composeCaption folds labels and detected slide text into one readable
// description line.
func composeCaption(r *visionpb.AnnotateImageResponse) string {
	labels := make([]string, 0, 4)
	for _, l := range r.LabelAnnotations {
		if l == nil || strings.TrimSpace(l.Description) == "" {
			continue
		}
		labels = append(labels, strings.ToLower(strings.TrimSpace(l.Description)))
		if len(labels) == 4 {
			break
		}
	}

	var slideText string
	if r.FullTextAnnotation != nil {
		slideText = collapseWhitespace(r.FullTextAnnotation.Text)
		if runes := []rune(slideText); len(runes) > 200 {
			slideText = string(runes[:200]) + "…"
		}
	}

	switch {
	case len(labels) > 0 && slideText != "":
		return fmt.Sprintf("Frame showing %s. On-screen text: %s", strings.Join(labels, ", "), slideText)
	case len(labels) > 0:
		return fmt.Sprintf("Frame showing %s.", strings.Join(labels, ", "))
	case slideText != "":
		return fmt.Sprintf("On-screen text: %s", slideText)
	default:
		return ""
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}
