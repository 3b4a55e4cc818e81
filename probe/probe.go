// Package probe dispatches raw bytes to the format parsers in a fixed
// priority order.
package probe

import (
	"binspect/asfscan"
	"binspect/ebmlscan"
	"binspect/elfscan"
	"binspect/flacscan"
	"binspect/gifscan"
	"binspect/gzipscan"
	"binspect/mp4scan"
	"binspect/pescan"
	"binspect/pngscan"
	"binspect/riffscan"
	"binspect/zipscan"
)

// Result couples a format name with that format's parse result. Value
// is one of the format packages' *File types, or nil for Unknown.
type Result struct {
	Format string
	Value  any
	Issues []string
}

// Unknown is the Format of data no parser claimed.
const Unknown = "unknown"

// Identify tries each format in priority order and returns the first
// claim. Formats with strong leading magic go first; ZIP goes last
// because its end-of-central-directory scan would claim any file that
// merely embeds an archive near its tail.
func Identify(data []byte) Result {
	if f := pescan.Parse(data); f != nil {
		return Result{Format: "pe", Value: f, Issues: f.Issues}
	}
	if f := elfscan.Parse(data); f != nil {
		return Result{Format: "elf", Value: f, Issues: f.Issues}
	}
	if f := asfscan.Parse(data); f != nil {
		return Result{Format: "asf", Value: f, Issues: f.Issues}
	}
	if f := ebmlscan.Parse(data); f != nil {
		return Result{Format: "ebml", Value: f, Issues: f.Issues}
	}
	if f := riffscan.Parse(data); f != nil {
		return Result{Format: "riff", Value: f, Issues: f.Issues}
	}
	if f := flacscan.Parse(data); f != nil {
		return Result{Format: "flac", Value: f, Issues: f.Issues}
	}
	if f := pngscan.Parse(data); f != nil {
		return Result{Format: "png", Value: f, Issues: f.Issues}
	}
	if f := gifscan.Parse(data); f != nil {
		return Result{Format: "gif", Value: f, Issues: f.Issues}
	}
	if f := mp4scan.Parse(data); f != nil {
		return Result{Format: "mp4", Value: f, Issues: f.Issues}
	}
	if f := gzipscan.Parse(data); f != nil {
		return Result{Format: "gzip", Value: f, Issues: f.Issues}
	}
	if f := zipscan.Parse(data); f != nil {
		return Result{Format: "zip", Value: f, Issues: f.Issues}
	}
	return Result{Format: Unknown}
}
