package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dmelnik/lumen/pkg/logger"
	"github.com/dmelnik/lumen/pkg/stream"
	"github.com/dmelnik/lumen/pkg/veo"
)

// Models names the model used for each route.
type Models struct {
	Text     string
	Research string
	Image    string
	Video    string
}

// Server hosts the generation API routes.
type Server struct {
	gen    Generator
	models Models
	tokens *TokenCache
	mux    *http.ServeMux
}

// New builds a Server over the given backend. tokens may be nil, in which
// case the token route is not registered.
func New(gen Generator, models Models, tokens *TokenCache) *Server {
	s := &Server{
		gen:    gen,
		models: models,
		tokens: tokens,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/stream", s.handleStream(models.Text, false))
	s.mux.HandleFunc("POST /api/research", s.handleStream(models.Research, true))
	s.mux.HandleFunc("POST /api/image", s.handleImage)
	s.mux.HandleFunc("POST /api/video", s.handleVideoSubmit)
	s.mux.HandleFunc("POST /api/video/status", s.handleVideoStatus)
	s.mux.HandleFunc("POST /api/video/download", s.handleVideoDownload)
	if tokens != nil {
		s.mux.HandleFunc("GET /api/token", s.handleToken)
	}

	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler { return s.mux }

// handleStream serves a prompt as newline-delimited JSON. Each model chunk
// becomes one {"delta"} line, grounded responses interleave
// {"groundingMetadata"} lines, and the stream ends with {"done":true} or a
// single {"error"} line.
func (s *Server) handleStream(model string, withSearch bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompt, ok := decodePrompt(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)

		emit := func(c Chunk) error {
			if c.Grounding != nil {
				if err := writeLine(w, flusher, map[string]any{"groundingMetadata": c.Grounding}); err != nil {
					return err
				}
			}
			if c.Delta != "" {
				return writeLine(w, flusher, map[string]string{"delta": c.Delta})
			}
			return nil
		}

		if err := s.gen.StreamContent(r.Context(), model, prompt, withSearch, emit); err != nil {
			logger.Error("stream generation failed: %v", err)
			// Headers are already out; the error travels as a stream record.
			_ = writeLine(w, flusher, map[string]string{"error": err.Error()})
			return
		}

		_ = writeLine(w, flusher, map[string]bool{"done": true})
	}
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	var req stream.ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.NumberOfImages <= 0 {
		req.NumberOfImages = 1
	}

	model := req.ModelVersion
	if model == "" {
		model = s.models.Image
	}

	prompt, translation := translatePrompt(r.Context(), s.gen, s.models.Text, req.Prompt)

	images, err := s.gen.GenerateImages(r.Context(), model, prompt, req.NumberOfImages, req.ImageSize, req.AspectRatio)
	if err != nil {
		logger.Error("image generation failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, stream.ImageResponse{Images: images, Translation: translation})
}

func (s *Server) handleVideoSubmit(w http.ResponseWriter, r *http.Request) {
	var req stream.VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	model := req.ModelVersion
	if model == "" {
		model = s.models.Video
	}

	// Correct rather than reject out-of-range combinations.
	sel := veo.Clamp(veo.Selection{
		Model:              veo.Model(model),
		Resolution:         veo.Resolution(req.Resolution),
		Duration:           veo.Duration(req.DurationSeconds),
		AspectRatio:        veo.AspectRatio(req.AspectRatio),
		HasReferenceImages: len(req.ReferenceImages) > 0,
	})

	prompt, translation := translatePrompt(r.Context(), s.gen, s.models.Text, req.Prompt)

	operation, err := s.gen.StartVideo(r.Context(), VideoJob{
		Model:           string(sel.Model),
		Prompt:          prompt,
		Resolution:      string(sel.Resolution),
		AspectRatio:     string(sel.AspectRatio),
		DurationSeconds: int(sel.Duration),
	})
	if err != nil {
		logger.Error("video submit failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, stream.VideoOperation{Operation: operation, Translation: translation})
}

func (s *Server) handleVideoStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operation string `json:"operation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Operation == "" {
		writeError(w, http.StatusBadRequest, "operation is required")
		return
	}

	status, err := s.gen.PollVideo(r.Context(), req.Operation)
	if err != nil {
		logger.Error("video poll failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	reply := map[string]any{"done": status.Done}
	if status.Error != "" {
		reply["error"] = status.Error
	}
	if status.VideoURI != "" {
		reply["response"] = map[string]any{
			"generatedVideos": []map[string]any{
				{"video": map[string]string{"uri": status.VideoURI}},
			},
		}
	}
	writeJSON(w, reply)
}

func (s *Server) handleVideoDownload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoURI string `json:"videoUri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoURI == "" {
		writeError(w, http.StatusBadRequest, "videoUri is required")
		return
	}

	data, mimeType, err := s.gen.DownloadVideo(r.Context(), req.VideoURI)
	if err != nil {
		logger.Error("video download failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, stream.VideoAsset{VideoBytes: data, MimeType: mimeType})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.tokens.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, tok)
}

func decodePrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return "", false
	}
	return req.Prompt, true
}

func writeLine(w http.ResponseWriter, flusher http.Flusher, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode stream record: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
