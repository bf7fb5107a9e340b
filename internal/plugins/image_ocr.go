package plugins

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"toolhub/services/conversion-api/internal/domain/tool"
)

// imageOCR extracts text from scanned images on the compute tier. The
// optional "language" parameter is passed through untouched.
type imageOCR struct {
	desc tool.Descriptor
}

// NewImageOCR builds the OCR plugin.
func NewImageOCR() (tool.Plugin, error) {
	return &imageOCR{
		desc: tool.Descriptor{
			Name:              "image-ocr",
			DisplayName:       "Image Text Extraction",
			Category:          "image",
			Version:           "1.0.0",
			AllowedExtensions: []string{"png", "jpg", "jpeg", "tiff", "bmp"},
			MaxInputBytes:     25 * 1024 * 1024,
			Handoff:           true,
			RemoteAction:      "ocr",
		},
	}, nil
}

func (p *imageOCR) Metadata() tool.Descriptor { return p.desc }

func (p *imageOCR) Validate(ctx context.Context, in tool.Input) error {
	if err := tool.ValidateCommon(p.desc, in); err != nil {
		return err
	}
	if !strings.HasPrefix(mimetype.Detect(in.Data).String(), "image/") {
		return tool.Rejectf("%s is not a recognized image", in.Filename)
	}
	return nil
}

func (p *imageOCR) Process(ctx context.Context, in tool.Input) (*tool.Output, error) {
	return nil, tool.ErrRemoteOnly
}

func (p *imageOCR) Cleanup(paths ...string) {}
