package plugins

import (
	"bytes"
	"context"

	"toolhub/services/conversion-api/internal/domain/tool"
)

var pdfMagic = []byte("%PDF-")

// pdfToDocx converts PDF documents to DOCX on the compute tier.
type pdfToDocx struct {
	desc tool.Descriptor
}

// NewPDFToDocx builds the PDF to DOCX conversion plugin.
func NewPDFToDocx() (tool.Plugin, error) {
	return &pdfToDocx{
		desc: tool.Descriptor{
			Name:              "pdf-to-docx",
			DisplayName:       "PDF to Word",
			Category:          "pdf",
			Version:           "1.0.0",
			AllowedExtensions: []string{"pdf"},
			MaxInputBytes:     50 * 1024 * 1024,
			Handoff:           true,
			RemoteAction:      "to-docx",
		},
	}, nil
}

func (p *pdfToDocx) Metadata() tool.Descriptor { return p.desc }

func (p *pdfToDocx) Validate(ctx context.Context, in tool.Input) error {
	if err := tool.ValidateCommon(p.desc, in); err != nil {
		return err
	}
	if !bytes.HasPrefix(in.Data, pdfMagic) {
		return tool.Rejectf("%s does not look like a PDF document", in.Filename)
	}
	return nil
}

func (p *pdfToDocx) Process(ctx context.Context, in tool.Input) (*tool.Output, error) {
	return nil, tool.ErrRemoteOnly
}

func (p *pdfToDocx) Cleanup(paths ...string) {}
