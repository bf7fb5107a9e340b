package plugins

import (
	"bytes"
	"context"

	"toolhub/services/conversion-api/internal/domain/tool"
)

// pdfMerger concatenates several PDFs into one document on the compute tier.
// It is a merge-style bulk tool: the whole batch becomes a single execution.
type pdfMerger struct {
	desc tool.Descriptor
}

// NewPDFMerger builds the PDF merge plugin.
func NewPDFMerger() (tool.Plugin, error) {
	return &pdfMerger{
		desc: tool.Descriptor{
			Name:              "pdf-merger",
			DisplayName:       "PDF Merger",
			Category:          "pdf",
			Version:           "1.0.0",
			AllowedExtensions: []string{"pdf"},
			MaxInputBytes:     50 * 1024 * 1024,
			SupportsBulk:      true,
			MinBatchFiles:     2,
			MaxBatchFiles:     20,
			Handoff:           true,
			RemoteAction:      "merge",
			BulkMerge:         true,
		},
	}, nil
}

func (p *pdfMerger) Metadata() tool.Descriptor { return p.desc }

func (p *pdfMerger) Validate(ctx context.Context, in tool.Input) error {
	if err := tool.ValidateCommon(p.desc, in); err != nil {
		return err
	}
	if !bytes.HasPrefix(in.Data, pdfMagic) {
		return tool.Rejectf("%s does not look like a PDF document", in.Filename)
	}
	return nil
}

func (p *pdfMerger) Process(ctx context.Context, in tool.Input) (*tool.Output, error) {
	return nil, tool.ErrRemoteOnly
}

func (p *pdfMerger) Cleanup(paths ...string) {}

func (p *pdfMerger) ValidateBatch(ctx context.Context, inputs []tool.Input) error {
	return tool.ValidateBatchSize(p.desc, len(inputs))
}
