package stream

import (
	"context"
	"fmt"

	"github.com/dmelnik/lumen/pkg/generation"
)

// VideoRequest is the payload for the video generation submit route
type VideoRequest struct {
	Prompt          string   `json:"prompt"`
	ModelVersion    string   `json:"modelVersion"`
	Resolution      string   `json:"resolution"`
	DurationSeconds int      `json:"durationSeconds"`
	AspectRatio     string   `json:"aspectRatio"`
	ReferenceImages [][]byte `json:"referenceImages,omitempty"`
}

// VideoOperation is the submit route's reply: an opaque handle for polling
type VideoOperation struct {
	Operation   string                  `json:"operation"`
	Translation *generation.Translation `json:"translation,omitempty"`
}

// VideoStatus is one poll result for a long-running video operation
type VideoStatus struct {
	Done     bool
	VideoURI string
	Error    string
}

// VideoAsset is a downloaded finished video
type VideoAsset struct {
	VideoBytes []byte `json:"videoBytes"`
	MimeType   string `json:"mimeType"`
}

// SubmitVideo starts a long-running video generation job.
func (c *Client) SubmitVideo(ctx context.Context, req VideoRequest) (*VideoOperation, error) {
	var resp VideoOperation
	if err := c.doJSON(ctx, "/api/video", req, &resp); err != nil {
		return nil, err
	}
	if resp.Operation == "" {
		return nil, fmt.Errorf("video submit returned no operation handle")
	}
	return &resp, nil
}

// PollOperation fetches the current status of a video operation.
func (c *Client) PollOperation(ctx context.Context, operation string) (*VideoStatus, error) {
	var resp struct {
		Done     bool    `json:"done"`
		Error    *string `json:"error,omitempty"`
		Response *struct {
			GeneratedVideos []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedVideos"`
		} `json:"response,omitempty"`
	}
	if err := c.doJSON(ctx, "/api/video/status", map[string]string{"operation": operation}, &resp); err != nil {
		return nil, err
	}

	status := &VideoStatus{Done: resp.Done}
	if resp.Error != nil {
		status.Error = *resp.Error
	}
	if resp.Response != nil && len(resp.Response.GeneratedVideos) > 0 {
		status.VideoURI = resp.Response.GeneratedVideos[0].Video.URI
	}
	return status, nil
}

// DownloadVideo fetches the finished asset for a completed operation. Call
// it exactly once per completed operation.
func (c *Client) DownloadVideo(ctx context.Context, videoURI string) (*VideoAsset, error) {
	var resp VideoAsset
	if err := c.doJSON(ctx, "/api/video/download", map[string]string{"videoUri": videoURI}, &resp); err != nil {
		return nil, err
	}
	if len(resp.VideoBytes) == 0 {
		return nil, fmt.Errorf("video download returned no data")
	}
	return &resp, nil
}
