package plugins

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"toolhub/services/conversion-api/internal/domain/tool"
)

var convertTargets = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "webp": {}, "gif": {}, "bmp": {}, "tiff": {},
}

// imageFormatConverter re-encodes raster images into a target format on the
// compute tier. The target format arrives as the "target_format" parameter.
type imageFormatConverter struct {
	desc tool.Descriptor
}

// NewImageFormatConverter builds the image format conversion plugin.
func NewImageFormatConverter() (tool.Plugin, error) {
	return &imageFormatConverter{
		desc: tool.Descriptor{
			Name:              "image-format-converter",
			DisplayName:       "Image Format Converter",
			Category:          "image",
			Version:           "1.0.0",
			AllowedExtensions: []string{"png", "jpg", "jpeg", "webp", "gif", "bmp", "tiff"},
			MaxInputBytes:     25 * 1024 * 1024,
			SupportsBulk:      true,
			MaxBatchFiles:     20,
			Handoff:           true,
			RemoteAction:      "convert",
		},
	}, nil
}

func (p *imageFormatConverter) Metadata() tool.Descriptor { return p.desc }

func (p *imageFormatConverter) Validate(ctx context.Context, in tool.Input) error {
	if err := tool.ValidateCommon(p.desc, in); err != nil {
		return err
	}

	if !strings.HasPrefix(mimetype.Detect(in.Data).String(), "image/") {
		return tool.Rejectf("%s is not a recognized image", in.Filename)
	}

	target := strings.ToLower(strings.TrimSpace(in.Params["target_format"]))
	if target == "" {
		return tool.Rejectf("target_format parameter is required")
	}
	if _, ok := convertTargets[target]; !ok {
		return tool.Rejectf("unsupported target format %q", target)
	}
	return nil
}

func (p *imageFormatConverter) Process(ctx context.Context, in tool.Input) (*tool.Output, error) {
	return nil, tool.ErrRemoteOnly
}

func (p *imageFormatConverter) Cleanup(paths ...string) {}

func (p *imageFormatConverter) ValidateBatch(ctx context.Context, inputs []tool.Input) error {
	return tool.ValidateBatchSize(p.desc, len(inputs))
}
