package genai

import "fmt"

// Response modalities understood by generateContent.
const (
	ModalityText  = "TEXT"
	ModalityImage = "IMAGE"
)

// GenerateContentRequest is the body of POST /models/{model}:generateContent.
type GenerateContentRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one conversation turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is exactly one of Text, InlineData or FileData, optionally with video metadata.
type Part struct {
	Text          string         `json:"text,omitempty"`
	InlineData    *Blob          `json:"inlineData,omitempty"`
	FileData      *FileData      `json:"fileData,omitempty"`
	VideoMetadata *VideoMetadata `json:"videoMetadata,omitempty"`
}

// Blob carries base64 encoded bytes inside the request.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FileData references a file previously uploaded to the file API.
type FileData struct {
	MIMEType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

// VideoMetadata controls how a video part is sampled.
type VideoMetadata struct {
	FPS int `json:"fps,omitempty"`
}

// GenerationConfig holds sampling options.
type GenerationConfig struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	TopP               *float64 `json:"topP,omitempty"`
	MaxOutputTokens    int      `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType   string   `json:"responseMimeType,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// GenerateContentResponse covers both the native candidate shape and the
// images[] shape returned by relay providers for image generation.
type GenerateContentResponse struct {
	Candidates []Candidate      `json:"candidates"`
	Images     []GeneratedImage `json:"images,omitempty"`
	Error      *ErrorBody       `json:"error,omitempty"`
}

// Candidate is one generated answer.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// GeneratedImage points at an image that must be downloaded separately.
type GeneratedImage struct {
	URL string `json:"url"`
}

// ErrorBody is the provider error envelope {"error":{...}}.
type ErrorBody struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// UploadMetadata is the JSON part of a multipart/related upload.
type UploadMetadata struct {
	File UploadFileInfo `json:"file"`
}

// UploadFileInfo describes the uploaded file.
type UploadFileInfo struct {
	DisplayName string `json:"display_name,omitempty"`
}

// UploadResponse is returned by the upload endpoint.
type UploadResponse struct {
	File struct {
		Name     string `json:"name"`
		URI      string `json:"uri"`
		MIMEType string `json:"mimeType"`
		State    string `json:"state"`
	} `json:"file"`
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Status     string // provider status token, e.g. RESOURCE_EXHAUSTED
	Message    string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("genai: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("genai: HTTP %d: %s", e.StatusCode, e.Message)
}
