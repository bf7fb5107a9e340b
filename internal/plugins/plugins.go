// Package plugins enumerates every conversion tool compiled into the
// service. Discovery is a compile-time list: each plugin ships a factory and
// the registry constructs them at startup.
package plugins

import "toolhub/services/conversion-api/internal/domain/tool"

// Candidates returns the full set of built-in plugins in registration order.
func Candidates() []tool.Candidate {
	return []tool.Candidate{
		{Name: "image-format-converter", Factory: NewImageFormatConverter},
		{Name: "pdf-to-docx", Factory: NewPDFToDocx},
		{Name: "image-ocr", Factory: NewImageOCR},
		{Name: "pdf-merger", Factory: NewPDFMerger},
		{Name: "gpx-analyzer", Factory: NewGPXAnalyzer},
		{Name: "csv-to-json", Factory: NewCSVToJSON},
	}
}
