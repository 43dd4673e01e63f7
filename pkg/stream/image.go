package stream

import (
	"context"

	"github.com/dmelnik/lumen/pkg/generation"
)

// ImageRequest is the payload for the image generation route
type ImageRequest struct {
	Prompt         string `json:"prompt"`
	NumberOfImages int    `json:"numberOfImages"`
	ImageSize      string `json:"imageSize,omitempty"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
	ModelVersion   string `json:"modelVersion,omitempty"`
}

// ImageResponse is the image generation route's reply
type ImageResponse struct {
	Images      []generation.GeneratedImage `json:"images"`
	Translation *generation.Translation     `json:"translation,omitempty"`
}

// GenerateImages issues a single image generation request.
func (c *Client) GenerateImages(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	var resp ImageResponse
	if err := c.doJSON(ctx, "/api/image", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
